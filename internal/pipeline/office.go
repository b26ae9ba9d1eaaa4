package pipeline

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// DOCX and PPTX are zip archives of XML parts. The loaders below pull
// the text runs out of the relevant parts without modeling the rest of
// the OOXML schema.

// docxLoader extracts paragraph text from word/document.xml.
type docxLoader struct{}

func (docxLoader) Load(data []byte) ([]Segment, error) {
	part, err := readZipPart(data, "word/document.xml")
	if err != nil {
		return nil, fmt.Errorf("reading docx: %w", err)
	}

	content, err := extractRuns(part, "t", "p")
	if err != nil {
		return nil, fmt.Errorf("parsing docx: %w", err)
	}
	if content == "" {
		return nil, ErrEmptyDocument
	}
	return []Segment{{Content: content, Metadata: map[string]any{}}}, nil
}

// pptxLoader extracts text from each slide part, one segment per slide
// in slide order.
type pptxLoader struct{}

func (pptxLoader) Load(data []byte) ([]Segment, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("reading pptx: %w", err)
	}

	var slides []string
	for _, f := range r.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			slides = append(slides, f.Name)
		}
	}
	// Archive order is not slide order.
	sort.Slice(slides, func(i, j int) bool {
		return slideNumber(slides[i]) < slideNumber(slides[j])
	})

	var segments []Segment
	for i, name := range slides {
		part, err := readZipPartFrom(r, name)
		if err != nil {
			return nil, fmt.Errorf("reading slide %s: %w", name, err)
		}
		content, err := extractRuns(part, "t", "p")
		if err != nil {
			return nil, fmt.Errorf("parsing slide %s: %w", name, err)
		}
		if content == "" {
			continue
		}
		segments = append(segments, Segment{
			Content:  content,
			Metadata: map[string]any{"slide": i + 1},
		})
	}
	if len(segments) == 0 {
		return nil, ErrEmptyDocument
	}
	return segments, nil
}

func slideNumber(name string) int {
	name = strings.TrimSuffix(strings.TrimPrefix(name, "ppt/slides/slide"), ".xml")
	n := 0
	for _, c := range name {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func readZipPart(data []byte, name string) ([]byte, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	return readZipPartFrom(r, name)
}

func readZipPartFrom(r *zip.Reader, name string) ([]byte, error) {
	f, err := r.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// extractRuns streams an OOXML part and concatenates the character
// data of every <textTag> element, inserting a line break at the end
// of each <paraTag> element.
func extractRuns(part []byte, textTag, paraTag string) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(part))

	var (
		b      strings.Builder
		inText bool
	)
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == textTag {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case textTag:
				inText = false
			case paraTag:
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}
