package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docidx/internal/embeddings"
	"github.com/fyrsmithlabs/docidx/internal/schema"
	"github.com/fyrsmithlabs/docidx/internal/scope"
)

func newTestPipeline(t *testing.T, cfg Config) *Pipeline {
	t.Helper()
	p, err := New(cfg, embeddings.NewFakeEmbedder(8), nil)
	require.NoError(t, err)
	return p
}

func userRequest(fileName, fileType string, content []byte) Request {
	return Request{
		FileName:    fileName,
		FileType:    fileType,
		Content:     content,
		CustomerID:  "acme",
		Scope:       scope.ScopeUser,
		Identifiers: scope.Identifiers{AccountID: "a1", UserID: "u1"},
	}
}

func TestParseFileType(t *testing.T) {
	tests := []struct {
		in       string
		expected FileType
	}{
		{"txt", FileTypeText},
		{"text", FileTypeText},
		{"md", FileTypeMarkdown},
		{"markdown", FileTypeMarkdown},
		{".html", FileTypeHTML},
		{"HTM", FileTypeHTML},
		{"pdf", FileTypePDF},
		{"docx", FileTypeDOCX},
		{"pptx", FileTypePPTX},
	}
	for _, tt := range tests {
		ft, err := ParseFileType(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.expected, ft)
	}

	_, err := ParseFileType("exe")
	assert.ErrorIs(t, err, ErrUnsupportedFileType)
}

func TestDocumentIDFor(t *testing.T) {
	assert.Equal(t, "report", DocumentIDFor(Request{FileName: "report.pdf"}))
	assert.Equal(t, "report", DocumentIDFor(Request{FileName: "dir/report.pdf"}))
	assert.Equal(t, "custom", DocumentIDFor(Request{DocumentID: "custom", FileName: "report.pdf"}))
}

func TestProcess_TextDocument(t *testing.T) {
	p := newTestPipeline(t, Config{ChunkSize: 40, ChunkOverlap: 5})

	content := strings.Repeat("alpha beta gamma delta epsilon zeta. ", 10)
	res, err := p.Process(context.Background(), userRequest("report.txt", "txt", []byte(content)))
	require.NoError(t, err)

	assert.Equal(t, "report", res.DocumentID)
	require.Greater(t, len(res.Units), 1, "content should split into multiple chunks")

	for i, u := range res.Units {
		assert.Equal(t, i, u.Position)
		assert.Equal(t, schema.ChunkID("report", i), u.ChunkID)
		assert.Equal(t, "report", u.DocumentID)
		assert.Equal(t, "acme", u.CustomerID)
		assert.Equal(t, "a1", u.AccountID)
		assert.Equal(t, "u1", u.UserID)
		assert.False(t, u.IsGlobal)
		assert.Len(t, u.Embedding, 8)
		assert.NotEmpty(t, u.Content)
		assert.Equal(t, "txt", u.Metadata["file_type"])
		assert.Equal(t, int64(len(content)), u.Metadata["file_size"])
	}

	assert.Equal(t, len(res.Units), len(res.ChunkIDs()))
}

func TestProcess_GlobalScope(t *testing.T) {
	p := newTestPipeline(t, Config{})

	req := Request{
		FileName:   "handbook.md",
		FileType:   "md",
		Content:    []byte("# Handbook\n\nWelcome aboard.\n\n## Policies\n\nBe kind."),
		CustomerID: "acme",
		Scope:      scope.ScopeGlobal,
	}
	res, err := p.Process(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Units)
	for _, u := range res.Units {
		assert.True(t, u.IsGlobal)
		assert.Empty(t, u.AccountID)
	}
}

func TestProcess_MetadataOverrides(t *testing.T) {
	p := newTestPipeline(t, Config{})

	req := userRequest("notes.txt", "txt", []byte("some text content"))
	req.Metadata = map[string]any{"source": "upload", "file_type": "declared"}

	res, err := p.Process(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Units)

	meta := res.Units[0].Metadata
	assert.Equal(t, "upload", meta["source"])
	// file_type and file_size always reflect the processed file.
	assert.Equal(t, "txt", meta["file_type"])
}

func TestProcess_ValidationFailures(t *testing.T) {
	p := newTestPipeline(t, Config{})
	ctx := context.Background()

	_, err := p.Process(ctx, userRequest("a.exe", "exe", []byte("x")))
	assert.ErrorIs(t, err, ErrUnsupportedFileType)

	_, err = p.Process(ctx, userRequest("a.txt", "txt", nil))
	assert.ErrorIs(t, err, ErrInvalidRequest)

	req := userRequest("a.txt", "txt", []byte("x"))
	req.Identifiers = scope.Identifiers{AccountID: "a1"}
	_, err = p.Process(ctx, req)
	assert.ErrorIs(t, err, scope.ErrMissingUserID)

	req = userRequest("a.txt", "txt", []byte("x"))
	req.CustomerID = ""
	_, err = p.Process(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestProcess_HTML(t *testing.T) {
	p := newTestPipeline(t, Config{})

	html := `<html><head><title>Doc</title><style>p{color:red}</style></head>
<body><h1>Heading</h1><p>First paragraph.</p><script>alert(1)</script><p>Second paragraph.</p></body></html>`
	res, err := p.Process(context.Background(), userRequest("page.html", "html", []byte(html)))
	require.NoError(t, err)
	require.NotEmpty(t, res.Units)

	all := strings.Join(collectContents(res.Units), "\n")
	assert.Contains(t, all, "First paragraph.")
	assert.Contains(t, all, "Second paragraph.")
	assert.NotContains(t, all, "alert(1)")
	assert.NotContains(t, all, "color:red")
}

func TestProcess_DOCX(t *testing.T) {
	p := newTestPipeline(t, Config{})

	doc := buildZip(t, map[string]string{
		"word/document.xml": `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph of the document.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second paragraph with more text.</w:t></w:r></w:p>
  </w:body>
</w:document>`,
	})

	res, err := p.Process(context.Background(), userRequest("memo.docx", "docx", doc))
	require.NoError(t, err)
	require.NotEmpty(t, res.Units)

	all := strings.Join(collectContents(res.Units), "\n")
	assert.Contains(t, all, "First paragraph of the document.")
	assert.Contains(t, all, "Second paragraph with more text.")
}

func TestProcess_PPTX_SlideOrder(t *testing.T) {
	p := newTestPipeline(t, Config{})

	slide := func(text string) string {
		return `<?xml version="1.0"?>
<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"
       xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">
  <p:cSld><p:spTree><p:sp><p:txBody>
    <a:p><a:r><a:t>` + text + `</a:t></a:r></a:p>
  </p:txBody></p:sp></p:spTree></p:cSld>
</p:sld>`
	}
	// Slide 10 before slide 2 in the archive; numeric order must win.
	deck := buildZip(t, map[string]string{
		"ppt/slides/slide10.xml": slide("tenth slide"),
		"ppt/slides/slide1.xml":  slide("first slide"),
		"ppt/slides/slide2.xml":  slide("second slide"),
	})

	res, err := p.Process(context.Background(), userRequest("deck.pptx", "pptx", deck))
	require.NoError(t, err)
	require.Len(t, res.Units, 3)

	assert.Contains(t, res.Units[0].Content, "first slide")
	assert.Contains(t, res.Units[1].Content, "second slide")
	assert.Contains(t, res.Units[2].Content, "tenth slide")
	for i, u := range res.Units {
		assert.Equal(t, i, u.Position)
	}
}

func TestConfig_Validate(t *testing.T) {
	bad := Config{ChunkSize: 100, ChunkOverlap: 100}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidRequest)

	bad = Config{ChunkSize: -1}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidRequest)
}

func collectContents(units []schema.DocumentUnit) []string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = u.Content
	}
	return out
}

func buildZip(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range parts {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}
