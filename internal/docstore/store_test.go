package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docidx/internal/schema"
	"github.com/fyrsmithlabs/docidx/internal/scope"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewStoreWithClient(client)
}

func testCustomer(id string) *schema.Customer {
	return &schema.Customer{
		CustomerID:  id,
		IndexConfig: schema.DefaultIndexConfig(),
		CreatedAt:   time.Now().UTC(),
	}
}

func TestStore_CreateCustomer(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateCustomer(ctx, testCustomer("acme")))

	got, err := store.GetCustomer(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", got.CustomerID)
	assert.Equal(t, schema.StrategyDefault, got.IndexConfig.Strategy)
}

func TestStore_CreateCustomer_AlreadyExists(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first := testCustomer("acme")
	first.IndexConfig.VectorDimensions = 768
	require.NoError(t, store.CreateCustomer(ctx, first))

	err := store.CreateCustomer(ctx, testCustomer("acme"))
	require.ErrorIs(t, err, ErrAlreadyExists)

	// The stored record is untouched by the failed create.
	got, err := store.GetCustomer(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 768, got.IndexConfig.VectorDimensions)
}

func TestStore_GetCustomer_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetCustomer(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DeleteCustomer(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateCustomer(ctx, testCustomer("acme")))
	require.NoError(t, store.DeleteCustomer(ctx, "acme"))

	_, err := store.GetCustomer(ctx, "acme")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.DeleteCustomer(ctx, "acme"), ErrNotFound)
}

func TestStore_ListCustomerIDs(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	ids, err := store.ListCustomerIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, store.CreateCustomer(ctx, testCustomer("acme")))
	require.NoError(t, store.CreateCustomer(ctx, testCustomer("globex")))

	ids, err = store.ListCustomerIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"acme", "globex"}, ids)
}

func TestStore_DocumentRecordRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rec := &schema.DocumentRecord{
		DocumentID: "report",
		CustomerID: "acme",
		AccountID:  "a1",
		UserID:     "u1",
		Scope:      scope.ScopeUser,
		StorageURL: "acme/a1/u1/report.pdf",
		FileSize:   2048,
		Indexed:    true,
		ChunkIDs:   []string{"report_chunk_0", "report_chunk_1"},
		IndexedAt:  time.Now().UTC(),
	}
	require.NoError(t, store.UpsertDocumentRecord(ctx, rec))

	got, err := store.GetDocumentRecord(ctx, "acme", "report")
	require.NoError(t, err)
	assert.Equal(t, rec.ChunkIDs, got.ChunkIDs)
	assert.Equal(t, scope.ScopeUser, got.Scope)

	ids, err := store.ListDocumentIDs(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"report"}, ids)

	// Upsert replaces on conflict.
	rec.ChunkIDs = []string{"report_chunk_0"}
	require.NoError(t, store.UpsertDocumentRecord(ctx, rec))
	got, err = store.GetDocumentRecord(ctx, "acme", "report")
	require.NoError(t, err)
	assert.Equal(t, []string{"report_chunk_0"}, got.ChunkIDs)

	require.NoError(t, store.DeleteDocumentRecord(ctx, "acme", "report"))
	_, err = store.GetDocumentRecord(ctx, "acme", "report")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.DeleteDocumentRecord(ctx, "acme", "report"), ErrNotFound)
}

func TestStore_DocumentRecords_IsolatedPerCustomer(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertDocumentRecord(ctx, &schema.DocumentRecord{
		DocumentID: "report", CustomerID: "acme", Scope: scope.ScopeGlobal,
	}))

	_, err := store.GetDocumentRecord(ctx, "globex", "report")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_IndexRecordLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rec := &schema.IndexRecord{
		IndexName:   "acme",
		CustomerID:  "acme",
		AdminID:     "admin1",
		DocumentIDs: []string{},
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, store.CreateIndexRecord(ctx, rec))
	assert.ErrorIs(t, store.CreateIndexRecord(ctx, rec), ErrAlreadyExists)

	got, err := store.GetIndexRecord(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, got.DocumentIDs)
	assert.Equal(t, "admin1", got.AdminID)

	require.NoError(t, store.DeleteIndexRecord(ctx, "acme"))
	_, err = store.GetIndexRecord(ctx, "acme")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_MutateIndexRecord(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateIndexRecord(ctx, &schema.IndexRecord{
		IndexName:  "acme",
		CustomerID: "acme",
	}))

	err := store.MutateIndexRecord(ctx, "acme", func(r *schema.IndexRecord) error {
		r.DocumentIDs = append(r.DocumentIDs, "report")
		return nil
	})
	require.NoError(t, err)

	got, err := store.GetIndexRecord(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"report"}, got.DocumentIDs)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestStore_MutateIndexRecord_NotFound(t *testing.T) {
	store := setupTestStore(t)

	err := store.MutateIndexRecord(context.Background(), "missing", func(r *schema.IndexRecord) error {
		return nil
	})
	require.ErrorIs(t, err, ErrNotFound)
}
