package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docidx/internal/schema"
	"github.com/fyrsmithlabs/docidx/internal/scope"
)

func unit(docID string, pos int, userID string, global bool, embedding []float32) schema.DocumentUnit {
	return schema.DocumentUnit{
		DocumentID: docID,
		ChunkID:    schema.ChunkID(docID, pos),
		Position:   pos,
		Content:    docID + " content",
		Embedding:  embedding,
		CustomerID: "acme",
		AccountID:  "a1",
		UserID:     userID,
		IsGlobal:   global,
	}
}

func TestValidateIndexName(t *testing.T) {
	require.NoError(t, ValidateIndexName("acme"))
	require.NoError(t, ValidateIndexName("acme_corp-1"))
	assert.ErrorIs(t, ValidateIndexName(""), ErrInvalidIndexName)
	assert.ErrorIs(t, ValidateIndexName("Bad Name"), ErrInvalidIndexName)
}

func TestPartitionUnits_MissingPrimaryKey(t *testing.T) {
	cfg := schema.DefaultIndexConfig()
	good := unit("report", 0, "u1", false, []float32{1})
	bad := unit("report", 1, "u1", false, []float32{1})
	bad.ChunkID = ""

	results, accepted, positions, err := partitionUnits(cfg, []schema.DocumentUnit{good, bad})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.ErrorIs(t, results[1].Err, ErrMissingKey)
	require.Len(t, accepted, 1)
	assert.Equal(t, "report_chunk_0", accepted[0].ChunkID)
	assert.Equal(t, []int{0}, positions)
}

func TestPartitionUnits_NoPrimaryKeyDeclared(t *testing.T) {
	cfg := schema.DefaultIndexConfig()
	cfg.Fields[0].PrimaryKey = false

	_, _, _, err := partitionUnits(cfg, []schema.DocumentUnit{unit("d", 0, "u1", false, nil)})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestMemoryAdapter_Lifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter()
	cfg := schema.DefaultIndexConfig()
	cfg.VectorDimensions = 2

	exists, err := m.IndexExists(ctx, "acme")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, m.CreateIndex(ctx, "acme", cfg))
	require.NoError(t, m.CreateIndex(ctx, "acme", cfg)) // idempotent

	exists, err = m.IndexExists(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMemoryAdapter_IndexAndSearch(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter()
	cfg := schema.DefaultIndexConfig()
	cfg.VectorDimensions = 2
	require.NoError(t, m.CreateIndex(ctx, "acme", cfg))

	units := []schema.DocumentUnit{
		unit("report", 0, "u1", false, []float32{1, 0}),
		unit("report", 1, "u1", false, []float32{0.9, 0.1}),
		unit("handbook", 0, "", true, []float32{0.5, 0.5}),
		unit("private", 0, "u2", false, []float32{1, 0}),
	}
	results, err := m.IndexUnits(ctx, "acme", cfg, units)
	require.NoError(t, err)
	for _, r := range results {
		assert.True(t, r.Success, "chunk %s", r.ChunkID)
	}
	assert.Equal(t, 4, m.UnitCount("acme"))

	f, err := scope.BuildFilter(scope.ScopeUser, scope.Identifiers{AccountID: "a1", UserID: "u1"})
	require.NoError(t, err)

	hits, err := m.Search(ctx, "acme", f, []float32{1, 0}, 10)
	require.NoError(t, err)

	var docs []string
	for _, h := range hits {
		docs = append(docs, h.DocumentID)
	}
	// Own and global documents are visible; the sibling user's are not.
	assert.Contains(t, docs, "report")
	assert.Contains(t, docs, "handbook")
	assert.NotContains(t, docs, "private")

	// Ranked by similarity: exact match first.
	assert.Equal(t, "report_chunk_0", hits[0].ChunkID)
}

func TestMemoryAdapter_SearchRespectsTopK(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter()
	cfg := schema.DefaultIndexConfig()
	cfg.VectorDimensions = 2
	require.NoError(t, m.CreateIndex(ctx, "acme", cfg))

	_, err := m.IndexUnits(ctx, "acme", cfg, []schema.DocumentUnit{
		unit("a", 0, "", true, []float32{1, 0}),
		unit("b", 0, "", true, []float32{0, 1}),
		unit("c", 0, "", true, []float32{1, 1}),
	})
	require.NoError(t, err)

	f, err := scope.BuildFilter(scope.ScopeGlobal, scope.Identifiers{})
	require.NoError(t, err)

	hits, err := m.Search(ctx, "acme", f, []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestMemoryAdapter_DeleteDocument(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter()
	cfg := schema.DefaultIndexConfig()
	cfg.VectorDimensions = 2
	require.NoError(t, m.CreateIndex(ctx, "acme", cfg))

	_, err := m.IndexUnits(ctx, "acme", cfg, []schema.DocumentUnit{
		unit("report", 0, "u1", false, []float32{1, 0}),
		unit("report", 1, "u1", false, []float32{0, 1}),
		unit("other", 0, "u1", false, []float32{1, 1}),
	})
	require.NoError(t, err)

	require.NoError(t, m.DeleteDocument(ctx, "acme", "report"))
	assert.Equal(t, 1, m.UnitCount("acme"))

	// Deleting an already-deleted document is a no-op server-side.
	require.NoError(t, m.DeleteDocument(ctx, "acme", "report"))
}

func TestMemoryAdapter_UnknownIndex(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter()
	cfg := schema.DefaultIndexConfig()

	_, err := m.IndexUnits(ctx, "ghost", cfg, []schema.DocumentUnit{unit("d", 0, "u1", false, nil)})
	assert.ErrorIs(t, err, ErrIndexNotFound)

	_, err = m.Search(ctx, "ghost", scope.Filter{}, []float32{1}, 1)
	assert.ErrorIs(t, err, ErrIndexNotFound)

	assert.ErrorIs(t, m.DeleteDocument(ctx, "ghost", "d"), ErrIndexNotFound)
}
