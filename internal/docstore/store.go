// Package docstore persists customers, document records, and index
// registry records in Redis. Records are JSON values under typed key
// prefixes; cross-process consistency relies on Redis single-key
// atomicity (SETNX for conditional create, WATCH transactions for
// read-modify-write on registry records).
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fyrsmithlabs/docidx/internal/schema"
)

// Common errors.
var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	ErrInvalidConfig = errors.New("invalid store config")
)

// Key prefixes.
const (
	customerPrefix    = "customer:"
	customerSetKey    = "customers"
	docRecordPrefix   = "docrecord:"
	docSetPrefix      = "docrecords:"
	indexRecordPrefix = "indexrecord:"
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	// DialTimeout bounds the initial connection attempt.
	DialTimeout time.Duration
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr required", ErrInvalidConfig)
	}
	return nil
}

// Store is the Redis-backed record store.
type Store struct {
	client *redis.Client
}

// NewStore connects to Redis and verifies the connection.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &Store{client: client}, nil
}

// NewStoreWithClient wraps an existing client. Used by tests.
func NewStoreWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// --- customers ---

func customerKey(id string) string { return customerPrefix + id }

// CreateCustomer stores a customer only if the id is unused. An
// existing record is left untouched and ErrAlreadyExists is returned.
func (s *Store) CreateCustomer(ctx context.Context, c *schema.Customer) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling customer: %w", err)
	}

	ok, err := s.client.SetNX(ctx, customerKey(c.CustomerID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("creating customer: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: customer %q", ErrAlreadyExists, c.CustomerID)
	}

	if err := s.client.SAdd(ctx, customerSetKey, c.CustomerID).Err(); err != nil {
		return fmt.Errorf("indexing customer: %w", err)
	}
	return nil
}

// SaveCustomer upserts a customer record, replacing on conflict.
func (s *Store) SaveCustomer(ctx context.Context, c *schema.Customer) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling customer: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, customerKey(c.CustomerID), data, 0)
	pipe.SAdd(ctx, customerSetKey, c.CustomerID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving customer: %w", err)
	}
	return nil
}

// GetCustomer fetches a customer by id.
func (s *Store) GetCustomer(ctx context.Context, id string) (*schema.Customer, error) {
	data, err := s.client.Get(ctx, customerKey(id)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: customer %q", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting customer: %w", err)
	}

	var c schema.Customer
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshaling customer: %w", err)
	}
	return &c, nil
}

// DeleteCustomer removes a customer record and its set entry.
func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	pipe := s.client.Pipeline()
	del := pipe.Del(ctx, customerKey(id))
	pipe.SRem(ctx, customerSetKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting customer: %w", err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("%w: customer %q", ErrNotFound, id)
	}
	return nil
}

// ListCustomerIDs returns all registered customer ids.
func (s *Store) ListCustomerIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, customerSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("listing customers: %w", err)
	}
	return ids, nil
}

// --- document records ---

func docRecordKey(customerID, documentID string) string {
	return docRecordPrefix + customerID + ":" + documentID
}

func docSetKey(customerID string) string { return docSetPrefix + customerID }

// UpsertDocumentRecord creates or replaces the record for a document.
// Re-uploading under the same document id overwrites the prior record.
func (s *Store) UpsertDocumentRecord(ctx context.Context, r *schema.DocumentRecord) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling document record: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, docRecordKey(r.CustomerID, r.DocumentID), data, 0)
	pipe.SAdd(ctx, docSetKey(r.CustomerID), r.DocumentID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving document record: %w", err)
	}
	return nil
}

// GetDocumentRecord fetches a document record.
func (s *Store) GetDocumentRecord(ctx context.Context, customerID, documentID string) (*schema.DocumentRecord, error) {
	data, err := s.client.Get(ctx, docRecordKey(customerID, documentID)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: document %q", ErrNotFound, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("getting document record: %w", err)
	}

	var r schema.DocumentRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshaling document record: %w", err)
	}
	return &r, nil
}

// DeleteDocumentRecord removes a document record.
func (s *Store) DeleteDocumentRecord(ctx context.Context, customerID, documentID string) error {
	pipe := s.client.Pipeline()
	del := pipe.Del(ctx, docRecordKey(customerID, documentID))
	pipe.SRem(ctx, docSetKey(customerID), documentID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting document record: %w", err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("%w: document %q", ErrNotFound, documentID)
	}
	return nil
}

// ListDocumentIDs returns the document ids stored for a customer.
func (s *Store) ListDocumentIDs(ctx context.Context, customerID string) ([]string, error) {
	ids, err := s.client.SMembers(ctx, docSetKey(customerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing document records: %w", err)
	}
	return ids, nil
}

// --- index records ---

func indexRecordKey(indexName string) string { return indexRecordPrefix + indexName }

// CreateIndexRecord stores an index record only if none exists for the
// index name. Losing the race to another writer returns
// ErrAlreadyExists with the stored record untouched.
func (s *Store) CreateIndexRecord(ctx context.Context, r *schema.IndexRecord) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling index record: %w", err)
	}

	ok, err := s.client.SetNX(ctx, indexRecordKey(r.IndexName), data, 0).Result()
	if err != nil {
		return fmt.Errorf("creating index record: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: index %q", ErrAlreadyExists, r.IndexName)
	}
	return nil
}

// GetIndexRecord fetches the registry record for an index.
func (s *Store) GetIndexRecord(ctx context.Context, indexName string) (*schema.IndexRecord, error) {
	data, err := s.client.Get(ctx, indexRecordKey(indexName)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: index %q", ErrNotFound, indexName)
	}
	if err != nil {
		return nil, fmt.Errorf("getting index record: %w", err)
	}

	var r schema.IndexRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshaling index record: %w", err)
	}
	return &r, nil
}

// DeleteIndexRecord removes the registry record for an index.
func (s *Store) DeleteIndexRecord(ctx context.Context, indexName string) error {
	n, err := s.client.Del(ctx, indexRecordKey(indexName)).Result()
	if err != nil {
		return fmt.Errorf("deleting index record: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: index %q", ErrNotFound, indexName)
	}
	return nil
}

// MutateIndexRecord applies fn to the index record inside an optimistic
// WATCH transaction, so concurrent document id updates from multiple
// processes cannot lose writes. The transaction is retried on conflict.
func (s *Store) MutateIndexRecord(ctx context.Context, indexName string, fn func(*schema.IndexRecord) error) error {
	key := indexRecordKey(indexName)

	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err == redis.Nil {
				return fmt.Errorf("%w: index %q", ErrNotFound, indexName)
			}
			if err != nil {
				return fmt.Errorf("getting index record: %w", err)
			}

			var r schema.IndexRecord
			if err := json.Unmarshal(data, &r); err != nil {
				return fmt.Errorf("unmarshaling index record: %w", err)
			}

			if err := fn(&r); err != nil {
				return err
			}
			r.UpdatedAt = time.Now().UTC()

			updated, err := json.Marshal(&r)
			if err != nil {
				return fmt.Errorf("marshaling index record: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, 0)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
	return fmt.Errorf("updating index record %q: transaction retries exhausted", indexName)
}
