// Package pipeline turns raw uploaded files into ordered, embedded
// document units. Stages run strictly in sequence: load, chunk, embed,
// assemble. A failure in any stage aborts the whole document before
// any index write happens.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docidx/internal/embeddings"
	"github.com/fyrsmithlabs/docidx/internal/schema"
	"github.com/fyrsmithlabs/docidx/internal/scope"
)

// ErrInvalidRequest indicates a malformed processing request.
var ErrInvalidRequest = errors.New("invalid pipeline request")

// Config holds chunking parameters.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = 1000
	}
	// Overlap of zero is valid, but the default gives splitters some
	// context carry-over.
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = 100
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive", ErrInvalidRequest)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk overlap must be in [0, chunk size)", ErrInvalidRequest)
	}
	return nil
}

// Request describes one document to process.
type Request struct {
	// DocumentID overrides the default id. When empty, the id is the
	// file name's base stem, so re-uploading the same file name
	// overwrites the earlier document's chunks.
	DocumentID string
	FileName   string
	FileType   string
	Content    []byte

	CustomerID  string
	Scope       scope.Scope
	Identifiers scope.Identifiers

	// Metadata is merged over loader metadata on every unit.
	Metadata map[string]any
}

// Result is the assembled output for one document.
type Result struct {
	DocumentID string
	FileType   FileType
	Units      []schema.DocumentUnit
}

// ChunkIDs lists the chunk ids in position order.
func (r Result) ChunkIDs() []string {
	ids := make([]string, len(r.Units))
	for i, u := range r.Units {
		ids[i] = u.ChunkID
	}
	return ids
}

// Pipeline is the document ingestion pipeline.
type Pipeline struct {
	config   Config
	embedder embeddings.Embedder
	logger   *zap.Logger
}

// New creates a pipeline with the given chunking config and embedder.
func New(config Config, embedder embeddings.Embedder, logger *zap.Logger) (*Pipeline, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder required", ErrInvalidRequest)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{config: config, embedder: embedder, logger: logger}, nil
}

// DocumentIDFor resolves the document id for a request: the explicit
// id when given, otherwise the file name's base stem.
func DocumentIDFor(req Request) string {
	if req.DocumentID != "" {
		return req.DocumentID
	}
	base := filepath.Base(req.FileName)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Process runs the full pipeline for one document and returns its
// units in chunk position order.
func (p *Pipeline) Process(ctx context.Context, req Request) (*Result, error) {
	fileType, err := ParseFileType(req.FileType)
	if err != nil {
		return nil, err
	}
	if err := req.Identifiers.Validate(req.Scope); err != nil {
		return nil, err
	}
	if req.CustomerID == "" {
		return nil, fmt.Errorf("%w: customer ID required", ErrInvalidRequest)
	}
	docID := DocumentIDFor(req)
	if docID == "" {
		return nil, fmt.Errorf("%w: document ID or file name required", ErrInvalidRequest)
	}
	if len(req.Content) == 0 {
		return nil, fmt.Errorf("%w: empty content", ErrInvalidRequest)
	}

	loader, err := loaderFor(fileType)
	if err != nil {
		return nil, err
	}
	segments, err := loader.Load(req.Content)
	if err != nil {
		documentsProcessed.WithLabelValues(string(fileType), "load_error").Inc()
		return nil, fmt.Errorf("loading %q: %w", docID, err)
	}

	splitter, err := splitterFor(fileType, p.config.ChunkSize, p.config.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	// Chunk each segment and concatenate in source order. The position
	// in the concatenated sequence defines the chunk id.
	type chunk struct {
		text    string
		segMeta map[string]any
	}
	var chunks []chunk
	for _, seg := range segments {
		texts, err := splitter.SplitText(seg.Content)
		if err != nil {
			documentsProcessed.WithLabelValues(string(fileType), "chunk_error").Inc()
			return nil, fmt.Errorf("chunking %q: %w", docID, err)
		}
		for _, t := range texts {
			if strings.TrimSpace(t) == "" {
				continue
			}
			chunks = append(chunks, chunk{text: t, segMeta: seg.Metadata})
		}
	}
	if len(chunks) == 0 {
		documentsProcessed.WithLabelValues(string(fileType), "chunk_error").Inc()
		return nil, fmt.Errorf("chunking %q: %w", docID, ErrEmptyDocument)
	}

	// One batched embed call for the whole document, order preserved.
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.text
	}
	embedBatchSize.Observe(float64(len(texts)))
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		documentsProcessed.WithLabelValues(string(fileType), "embed_error").Inc()
		return nil, fmt.Errorf("embedding %q: %w", docID, err)
	}
	if len(vectors) != len(chunks) {
		documentsProcessed.WithLabelValues(string(fileType), "embed_error").Inc()
		return nil, fmt.Errorf("embedding %q: got %d vectors for %d chunks", docID, len(vectors), len(chunks))
	}

	units := make([]schema.DocumentUnit, len(chunks))
	for i, c := range chunks {
		units[i] = schema.DocumentUnit{
			DocumentID: docID,
			ChunkID:    schema.ChunkID(docID, i),
			Position:   i,
			Content:    c.text,
			Embedding:  vectors[i],
			CustomerID: req.CustomerID,
			AccountID:  req.Identifiers.AccountID,
			UserID:     req.Identifiers.UserID,
			SessionID:  req.Identifiers.SessionID,
			IsGlobal:   req.Scope == scope.ScopeGlobal,
			Metadata:   mergeMetadata(c.segMeta, req.Metadata, fileType, int64(len(req.Content))),
			Version:    1,
		}
	}

	documentsProcessed.WithLabelValues(string(fileType), "success").Inc()
	chunksProduced.Add(float64(len(units)))
	p.logger.Debug("document processed",
		zap.String("document_id", docID),
		zap.String("file_type", string(fileType)),
		zap.Int("chunks", len(units)),
	)

	return &Result{DocumentID: docID, FileType: fileType, Units: units}, nil
}

// mergeMetadata layers loader metadata, then explicit overrides, then
// the file type and size.
func mergeMetadata(segMeta, overrides map[string]any, fileType FileType, fileSize int64) map[string]any {
	merged := make(map[string]any, len(segMeta)+len(overrides)+2)
	for k, v := range segMeta {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	merged["file_type"] = string(fileType)
	merged["file_size"] = fileSize
	return merged
}
