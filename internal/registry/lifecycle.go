// Package registry owns tenant onboarding and the index lifecycle:
// provisioning a tenant's search index and keeping the index registry
// record in step with the documents it holds.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docidx/internal/docstore"
	"github.com/fyrsmithlabs/docidx/internal/index"
	"github.com/fyrsmithlabs/docidx/internal/schema"
)

// Common errors.
var (
	ErrConfigNotFound = errors.New("index configuration not found")
	ErrCustomerExists = errors.New("customer already registered")
)

// Action selects the direction of a registry document id update.
type Action string

const (
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
)

// IndexNameFor resolves the search index name for a customer. Both
// strategies currently share the tenant id; keyed naming would change
// only this seam.
func IndexNameFor(c *schema.Customer) string {
	return c.CustomerID
}

// Lifecycle provisions indices and maintains the index registry.
type Lifecycle struct {
	store   *docstore.Store
	adapter index.Adapter
	logger  *zap.Logger
}

// NewLifecycle creates an index lifecycle manager.
func NewLifecycle(store *docstore.Store, adapter index.Adapter, logger *zap.Logger) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lifecycle{store: store, adapter: adapter, logger: logger}
}

// EnsureIndex creates the customer's index and registry record if they
// do not exist yet. The registry insert is conditional, so two
// concurrent provisioners cannot both create the record; the loser
// treats the index as already provisioned.
func (l *Lifecycle) EnsureIndex(ctx context.Context, customerID, adminID string) (string, error) {
	customer, err := l.store.GetCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return "", fmt.Errorf("%w: customer %q", ErrConfigNotFound, customerID)
		}
		return "", err
	}

	indexName := IndexNameFor(customer)

	exists, err := l.adapter.IndexExists(ctx, indexName)
	if err != nil {
		return "", fmt.Errorf("checking index %q: %w", indexName, err)
	}
	if !exists {
		if err := l.adapter.CreateIndex(ctx, indexName, customer.IndexConfig); err != nil {
			return "", fmt.Errorf("creating index %q: %w", indexName, err)
		}
		l.logger.Info("index created",
			zap.String("index", indexName),
			zap.String("customer_id", customerID),
		)
	}

	now := time.Now().UTC()
	err = l.store.CreateIndexRecord(ctx, &schema.IndexRecord{
		IndexName:   indexName,
		CustomerID:  customerID,
		AdminID:     adminID,
		DocumentIDs: []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil && !errors.Is(err, docstore.ErrAlreadyExists) {
		return "", fmt.Errorf("creating index record %q: %w", indexName, err)
	}
	return indexName, nil
}

// UpdateDocuments adds or removes a document id on the index registry
// record. A missing record is a recoverable condition: registry
// entries may legitimately lag document records during partial
// failures, so it is reported as a false result with a warning rather
// than an error.
func (l *Lifecycle) UpdateDocuments(ctx context.Context, indexName, documentID string, action Action) (bool, error) {
	if documentID == "" {
		return false, fmt.Errorf("document ID required")
	}

	err := l.store.MutateIndexRecord(ctx, indexName, func(r *schema.IndexRecord) error {
		switch action {
		case ActionAdd:
			for _, id := range r.DocumentIDs {
				if id == documentID {
					return nil
				}
			}
			r.DocumentIDs = append(r.DocumentIDs, documentID)
			return nil
		case ActionRemove:
			kept := r.DocumentIDs[:0]
			for _, id := range r.DocumentIDs {
				if id != documentID {
					kept = append(kept, id)
				}
			}
			r.DocumentIDs = kept
			return nil
		default:
			return fmt.Errorf("unknown action %q", action)
		}
	})
	if errors.Is(err, docstore.ErrNotFound) {
		l.logger.Warn("index record missing, registry update skipped",
			zap.String("index", indexName),
			zap.String("document_id", documentID),
			zap.String("action", string(action)),
		)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
