// Package docmgr orchestrates the document flows: upload through the
// ingestion pipeline into the search index, scope-filtered search, and
// authorized deletion. It owns the per-tenant runtime cache; all
// cross-request state lives in the external stores.
package docmgr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docidx/internal/docstore"
	"github.com/fyrsmithlabs/docidx/internal/embeddings"
	"github.com/fyrsmithlabs/docidx/internal/index"
	"github.com/fyrsmithlabs/docidx/internal/objstore"
	"github.com/fyrsmithlabs/docidx/internal/pipeline"
	"github.com/fyrsmithlabs/docidx/internal/registry"
	"github.com/fyrsmithlabs/docidx/internal/schema"
	"github.com/fyrsmithlabs/docidx/internal/scope"
)

// ErrNotFoundOrUnauthorized covers both an unknown document and an
// authorization failure. The two are deliberately merged so callers
// cannot probe for document existence.
var ErrNotFoundOrUnauthorized = errors.New("document not found or not authorized")

// DefaultTopK bounds search results when the caller does not set one.
const DefaultTopK = 10

// tenantRuntime is the cached per-tenant state: index name and config,
// resolved once and shared read-only by concurrent requests.
type tenantRuntime struct {
	indexName string
	config    schema.IndexConfig
}

// Manager wires the components behind the upload, search, and delete
// operations.
type Manager struct {
	store     *docstore.Store
	adapter   index.Adapter
	storage   objstore.Storage
	embedder  embeddings.Embedder
	pipeline  *pipeline.Pipeline
	lifecycle *registry.Lifecycle
	logger    *zap.Logger

	mu      sync.Mutex
	tenants map[string]*tenantRuntime
}

// New creates a document manager.
func New(
	store *docstore.Store,
	adapter index.Adapter,
	storage objstore.Storage,
	embedder embeddings.Embedder,
	pipe *pipeline.Pipeline,
	lifecycle *registry.Lifecycle,
	logger *zap.Logger,
) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:     store,
		adapter:   adapter,
		storage:   storage,
		embedder:  embedder,
		pipeline:  pipe,
		lifecycle: lifecycle,
		logger:    logger,
		tenants:   make(map[string]*tenantRuntime),
	}
}

// tenant resolves the cached runtime for a customer, constructing it
// under the lock on first use. The cached value is never mutated after
// construction.
func (m *Manager) tenant(ctx context.Context, customerID string) (*tenantRuntime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rt, ok := m.tenants[customerID]; ok {
		return rt, nil
	}

	customer, err := m.store.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	rt := &tenantRuntime{
		indexName: registry.IndexNameFor(customer),
		config:    customer.IndexConfig,
	}
	m.tenants[customerID] = rt
	return rt, nil
}

// Invalidate drops a tenant's cached runtime, forcing the next request
// to re-read the stored config. Called after config updates.
func (m *Manager) Invalidate(customerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tenants, customerID)
}

// UploadRequest describes one document upload.
type UploadRequest struct {
	CustomerID string
	// DocumentID overrides the file-name-stem default.
	DocumentID  string
	FileName    string
	FileType    string
	Content     []byte
	Scope       scope.Scope
	Identifiers scope.Identifiers
	Metadata    map[string]any
}

// UploadResult reports the outcome of an upload, including per-unit
// indexing results. Failed units are reported, not retried and not
// rolled back.
type UploadResult struct {
	DocumentID      string
	StorageURL      string
	ChunkIDs        []string
	UnitResults     []index.UnitResult
	FailedUnits     int
	RegistryUpdated bool
}

// Upload runs the full ingestion flow: resolve addressing, store the
// raw file, run the pipeline, index the units, persist the document
// record, and append the document id to the index registry.
func (m *Manager) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	// Validation happens before any external call.
	prefix, err := scope.StoragePrefix(req.CustomerID, req.Scope, req.Identifiers)
	if err != nil {
		return nil, err
	}
	if _, err := pipeline.ParseFileType(req.FileType); err != nil {
		return nil, err
	}

	rt, err := m.tenant(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}

	key := objstore.ObjectKey(prefix, req.FileName)
	storageURL, err := m.storage.Upload(ctx, key, bytes.NewReader(req.Content), int64(len(req.Content)), map[string]string{
		"customer_id": req.CustomerID,
		"scope":       string(req.Scope),
	})
	if err != nil {
		return nil, fmt.Errorf("storing %q: %w", req.FileName, err)
	}

	res, err := m.pipeline.Process(ctx, pipeline.Request{
		DocumentID:  req.DocumentID,
		FileName:    req.FileName,
		FileType:    req.FileType,
		Content:     req.Content,
		CustomerID:  req.CustomerID,
		Scope:       req.Scope,
		Identifiers: req.Identifiers,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, err
	}

	unitResults, err := m.adapter.IndexUnits(ctx, rt.indexName, rt.config, res.Units)
	if err != nil {
		return nil, fmt.Errorf("indexing %q: %w", res.DocumentID, err)
	}
	failed := 0
	for _, r := range unitResults {
		if !r.Success {
			failed++
		}
	}
	if failed > 0 {
		m.logger.Warn("partial indexing failure",
			zap.String("customer_id", req.CustomerID),
			zap.String("document_id", res.DocumentID),
			zap.Int("failed_units", failed),
			zap.Int("total_units", len(unitResults)),
		)
	}

	record := &schema.DocumentRecord{
		DocumentID: res.DocumentID,
		CustomerID: req.CustomerID,
		AccountID:  req.Identifiers.AccountID,
		UserID:     req.Identifiers.UserID,
		SessionID:  req.Identifiers.SessionID,
		Scope:      req.Scope,
		StorageURL: storageURL,
		FileSize:   int64(len(req.Content)),
		Indexed:    failed < len(unitResults),
		ChunkIDs:   res.ChunkIDs(),
		IndexedAt:  time.Now().UTC(),
	}
	if err := m.store.UpsertDocumentRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("saving record for %q: %w", res.DocumentID, err)
	}

	registryOK, err := m.lifecycle.UpdateDocuments(ctx, rt.indexName, res.DocumentID, registry.ActionAdd)
	if err != nil {
		return nil, fmt.Errorf("updating registry for %q: %w", res.DocumentID, err)
	}

	m.logger.Info("document uploaded",
		zap.String("customer_id", req.CustomerID),
		zap.String("document_id", res.DocumentID),
		zap.String("scope", string(req.Scope)),
		zap.Int("chunks", len(res.Units)),
	)

	return &UploadResult{
		DocumentID:      res.DocumentID,
		StorageURL:      storageURL,
		ChunkIDs:        record.ChunkIDs,
		UnitResults:     unitResults,
		FailedUnits:     failed,
		RegistryUpdated: registryOK,
	}, nil
}

// DeleteRequest identifies a document and the requesting user.
type DeleteRequest struct {
	CustomerID string
	DocumentID string
	UserID     string
}

// Delete removes a document end to end: authorize against the record's
// owner, best-effort blob cleanup, server-side chunk removal, record
// deletion, registry removal. Unknown documents and unauthorized
// requests fail with the same error.
func (m *Manager) Delete(ctx context.Context, req DeleteRequest) error {
	rt, err := m.tenant(ctx, req.CustomerID)
	if err != nil {
		return err
	}

	record, err := m.store.GetDocumentRecord(ctx, req.CustomerID, req.DocumentID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrNotFoundOrUnauthorized
		}
		return err
	}

	// Owner check: exact user id match. No admin override path.
	if record.UserID != req.UserID {
		return ErrNotFoundOrUnauthorized
	}

	// Blob cleanup is best-effort: chunk and record removal proceed
	// even when the object store fails.
	if record.StorageURL != "" {
		if err := m.storage.Delete(ctx, record.StorageURL); err != nil {
			m.logger.Warn("blob deletion failed",
				zap.String("document_id", req.DocumentID),
				zap.String("storage_url", record.StorageURL),
				zap.Error(err),
			)
		}
	}

	if err := m.adapter.DeleteDocument(ctx, rt.indexName, req.DocumentID); err != nil {
		return fmt.Errorf("deleting chunks of %q: %w", req.DocumentID, err)
	}

	if err := m.store.DeleteDocumentRecord(ctx, req.CustomerID, req.DocumentID); err != nil {
		return fmt.Errorf("deleting record of %q: %w", req.DocumentID, err)
	}

	if _, err := m.lifecycle.UpdateDocuments(ctx, rt.indexName, req.DocumentID, registry.ActionRemove); err != nil {
		return fmt.Errorf("updating registry for %q: %w", req.DocumentID, err)
	}

	m.logger.Info("document deleted",
		zap.String("customer_id", req.CustomerID),
		zap.String("document_id", req.DocumentID),
	)
	return nil
}

// SearchRequest describes a scoped similarity search.
type SearchRequest struct {
	CustomerID  string
	Query       string
	Scope       scope.Scope
	Identifiers scope.Identifiers
	TopK        int
}

// Search embeds the query with the ingestion embedder and issues a
// filtered nearest-neighbor request. Results come back in engine rank
// order.
func (m *Manager) Search(ctx context.Context, req SearchRequest) ([]index.Result, error) {
	filter, err := scope.BuildFilter(req.Scope, req.Identifiers)
	if err != nil {
		return nil, err
	}
	if req.Query == "" {
		return nil, fmt.Errorf("%w: query required", pipeline.ErrInvalidRequest)
	}
	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	rt, err := m.tenant(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}

	vector, err := m.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := m.adapter.Search(ctx, rt.indexName, filter, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", rt.indexName, err)
	}
	return results, nil
}
