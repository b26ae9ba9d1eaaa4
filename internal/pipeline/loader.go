package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Common errors.
var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrEmptyDocument       = errors.New("document produced no content")
)

// Segment is one ordered piece of loaded text with loader metadata.
type Segment struct {
	Content  string
	Metadata map[string]any
}

// Loader extracts ordered text segments from raw file content.
type Loader interface {
	Load(data []byte) ([]Segment, error)
}

// FileType is a normalized, declared file type.
type FileType string

const (
	FileTypeText     FileType = "txt"
	FileTypeMarkdown FileType = "md"
	FileTypeHTML     FileType = "html"
	FileTypePDF      FileType = "pdf"
	FileTypeDOCX     FileType = "docx"
	FileTypePPTX     FileType = "pptx"
)

// ParseFileType normalizes a declared file type or extension.
// Unsupported types fail validation before any external call.
func ParseFileType(s string) (FileType, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "txt", "text":
		return FileTypeText, nil
	case "md", "markdown":
		return FileTypeMarkdown, nil
	case "html", "htm":
		return FileTypeHTML, nil
	case "pdf":
		return FileTypePDF, nil
	case "docx":
		return FileTypeDOCX, nil
	case "pptx":
		return FileTypePPTX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFileType, s)
	}
}

// loaderFor returns the loader for a file type.
func loaderFor(t FileType) (Loader, error) {
	switch t {
	case FileTypeText, FileTypeMarkdown:
		return textLoader{}, nil
	case FileTypeHTML:
		return htmlLoader{}, nil
	case FileTypePDF:
		return pdfLoader{}, nil
	case FileTypeDOCX:
		return docxLoader{}, nil
	case FileTypePPTX:
		return pptxLoader{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFileType, t)
	}
}

// textLoader passes plain text and markdown through as one segment.
type textLoader struct{}

func (textLoader) Load(data []byte) ([]Segment, error) {
	content := strings.TrimSpace(string(data))
	if content == "" {
		return nil, ErrEmptyDocument
	}
	return []Segment{{Content: content, Metadata: map[string]any{}}}, nil
}

// htmlLoader extracts visible text from an HTML document, dropping
// script and style subtrees. Block elements become line breaks so the
// splitter sees the document's structure.
type htmlLoader struct{}

func (htmlLoader) Load(data []byte) ([]Segment, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	var (
		b     strings.Builder
		title string
		walk  func(n *html.Node)
	)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "title":
				if n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				b.WriteString(text)
				b.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && isBlockElement(n.Data) {
			b.WriteString("\n\n")
		}
	}
	walk(root)

	content := strings.TrimSpace(b.String())
	if content == "" {
		return nil, ErrEmptyDocument
	}

	meta := map[string]any{}
	if title != "" {
		meta["title"] = title
	}
	return []Segment{{Content: content, Metadata: meta}}, nil
}

func isBlockElement(tag string) bool {
	switch tag {
	case "p", "div", "section", "article", "li", "tr", "br",
		"h1", "h2", "h3", "h4", "h5", "h6", "blockquote", "pre":
		return true
	}
	return false
}
