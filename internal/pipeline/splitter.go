package pipeline

import (
	"fmt"

	"github.com/tmc/langchaingo/textsplitter"
)

// Separator lists for recursive splitting. Slide decks carry short,
// line-oriented text, so the paragraph separator is dropped there.
var (
	recursiveSeparators = []string{"\n\n", "\n", " ", ""}
	slideSeparators     = []string{"\n", " ", ""}
)

// splitterFor selects the chunking strategy for a file type:
// structure-preserving markdown splitting for markdown and HTML,
// recursive separator splitting for everything else.
func splitterFor(t FileType, chunkSize, chunkOverlap int) (textsplitter.TextSplitter, error) {
	switch t {
	case FileTypeMarkdown, FileTypeHTML:
		return textsplitter.NewMarkdownTextSplitter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		), nil
	case FileTypePDF, FileTypeDOCX, FileTypeText:
		return textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(recursiveSeparators),
		), nil
	case FileTypePPTX:
		return textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(slideSeparators),
		), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFileType, t)
	}
}
