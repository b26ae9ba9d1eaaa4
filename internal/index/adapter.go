// Package index defines the search index adapter and its backends.
// The adapter owns index provisioning, bulk unit indexing with
// per-unit results, server-side document deletion, and filtered
// vector search.
package index

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/fyrsmithlabs/docidx/internal/schema"
	"github.com/fyrsmithlabs/docidx/internal/scope"
)

// Common errors.
var (
	ErrInvalidConfig   = errors.New("invalid index config")
	ErrIndexNotFound   = errors.New("index not found")
	ErrMissingKey      = errors.New("unit missing primary key value")
	ErrExternalService = errors.New("search index service error")
)

// UnitResult reports the outcome of indexing one document unit.
type UnitResult struct {
	ChunkID string
	Success bool
	Err     error
}

// Result is one ranked search hit.
type Result struct {
	DocumentID string
	ChunkID    string
	Content    string
	Score      float32
	Metadata   map[string]any
}

// Adapter is the interface to the external vector/text index.
//
// CreateIndex is idempotent. IndexUnits returns one result per unit in
// input order; failures are reported, never retried. DeleteDocument
// resolves the chunk set server-side from the parent document id, so
// it does not depend on a client-held chunk list.
type Adapter interface {
	IndexExists(ctx context.Context, name string) (bool, error)
	CreateIndex(ctx context.Context, name string, cfg schema.IndexConfig) error
	IndexUnits(ctx context.Context, name string, cfg schema.IndexConfig, units []schema.DocumentUnit) ([]UnitResult, error)
	DeleteDocument(ctx context.Context, name, documentID string) error
	Search(ctx context.Context, name string, f scope.Filter, vector []float32, topK int) ([]Result, error)
}

// unitFieldValue resolves a declared schema field name to the unit's
// value for it. Fields not backed by the unit struct fall through to
// metadata.
func unitFieldValue(u schema.DocumentUnit, field string) string {
	switch field {
	case "chunk_id":
		return u.ChunkID
	case "document_id":
		return u.DocumentID
	case "content":
		return u.Content
	case scope.FieldAccountID:
		return u.AccountID
	case scope.FieldUserID:
		return u.UserID
	case scope.FieldSessionID:
		return u.SessionID
	case scope.FieldIsGlobal:
		return strconv.FormatBool(u.IsGlobal)
	}
	if v, ok := u.Metadata[field]; ok {
		return fmt.Sprint(v)
	}
	return ""
}

// partitionUnits rejects units whose declared primary key value is
// empty before any server call. It returns the failure results and the
// units safe to send, plus the input position of each accepted unit so
// callers can place outcomes back into the full result slice.
func partitionUnits(cfg schema.IndexConfig, units []schema.DocumentUnit) (results []UnitResult, accepted []schema.DocumentUnit, positions []int, err error) {
	keyField := cfg.PrimaryKeyField()
	if keyField == "" {
		return nil, nil, nil, fmt.Errorf("%w: no primary key field declared", ErrInvalidConfig)
	}

	results = make([]UnitResult, len(units))
	for i, u := range units {
		results[i].ChunkID = u.ChunkID
		if unitFieldValue(u, keyField) == "" {
			results[i].Err = fmt.Errorf("%w: field %q on chunk %q", ErrMissingKey, keyField, u.ChunkID)
			continue
		}
		accepted = append(accepted, u)
		positions = append(positions, i)
	}
	return results, accepted, positions, nil
}
