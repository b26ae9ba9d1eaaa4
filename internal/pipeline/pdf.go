package pipeline

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfLoader extracts text from a PDF, one segment per page with the
// page number in the segment metadata.
type pdfLoader struct{}

func (pdfLoader) Load(data []byte) ([]Segment, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parsing pdf: %w", err)
	}

	var segments []Segment
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extracting pdf page %d: %w", i, err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		segments = append(segments, Segment{
			Content:  text,
			Metadata: map[string]any{"page": i},
		})
	}
	if len(segments) == 0 {
		return nil, ErrEmptyDocument
	}
	return segments, nil
}
