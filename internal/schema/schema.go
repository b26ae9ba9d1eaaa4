// Package schema defines the persisted data model: customers and their
// index configuration, index registry records, per-document metadata
// records, and the embedded document units written to the search index.
package schema

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/docidx/internal/scope"
)

// Common errors.
var (
	ErrInvalidCustomer  = errors.New("invalid customer")
	ErrInvalidField     = errors.New("invalid index field")
	ErrInvalidFieldType = errors.New("invalid field type")
	ErrInvalidStrategy  = errors.New("invalid indexing strategy")
	ErrInvalidConfig    = errors.New("invalid index config")
)

// FieldType enumerates the declared types an index field may take.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldDate    FieldType = "date"
	FieldInteger FieldType = "integer"
	FieldFloat   FieldType = "float"
	FieldBoolean FieldType = "boolean"
)

// Valid reports whether the field type is one of the declared variants.
func (t FieldType) Valid() bool {
	switch t {
	case FieldString, FieldDate, FieldInteger, FieldFloat, FieldBoolean:
		return true
	}
	return false
}

// IndexingStrategy is the policy for how a tenant's documents are
// distributed across search indices.
type IndexingStrategy string

const (
	// StrategyDefault places all of a tenant's documents in one shared index.
	StrategyDefault IndexingStrategy = "DEFAULT"
	// StrategyKeyed declares per-key indices. Index naming does not yet
	// differentiate it from StrategyDefault; the strategy is accepted and
	// validated so configs carrying it round-trip unchanged.
	StrategyKeyed IndexingStrategy = "KEYED"
)

// Valid reports whether the strategy is a declared variant.
func (s IndexingStrategy) Valid() bool {
	return s == StrategyDefault || s == StrategyKeyed
}

// IndexField is one named, typed field of a tenant's index schema.
type IndexField struct {
	Name       string    `json:"name"`
	Type       FieldType `json:"type"`
	Filterable bool      `json:"filterable"`
	Searchable bool      `json:"searchable"`
	Sortable   bool      `json:"sortable"`
	PrimaryKey bool      `json:"primary_key"`
}

// Validate checks the field's name and type.
func (f IndexField) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("%w: name required", ErrInvalidField)
	}
	if !f.Type.Valid() {
		return fmt.Errorf("%w: %q on field %q", ErrInvalidFieldType, f.Type, f.Name)
	}
	if f.PrimaryKey && f.Type != FieldString {
		return fmt.Errorf("%w: primary key field %q must be a string", ErrInvalidField, f.Name)
	}
	return nil
}

// IndexConfig is a tenant's declared index schema and strategy.
type IndexConfig struct {
	Fields           []IndexField     `json:"fields"`
	VectorDimensions int              `json:"vector_dimensions"`
	Strategy         IndexingStrategy `json:"strategy"`
	// IndexKey names the field used to key per-index routing under
	// StrategyKeyed. Required for that strategy, ignored otherwise.
	IndexKey string `json:"index_key,omitempty"`
}

// DefaultVectorDimensions matches the dimensionality of the default
// embedding model.
const DefaultVectorDimensions = 1536

// ApplyDefaults fills zero values with defaults.
func (c *IndexConfig) ApplyDefaults() {
	if c.VectorDimensions == 0 {
		c.VectorDimensions = DefaultVectorDimensions
	}
	if c.Strategy == "" {
		c.Strategy = StrategyDefault
	}
}

// Validate checks the config: at least one field, exactly one primary
// key, valid field types, positive vector dimensionality, and an index
// key when the strategy is KEYED.
func (c IndexConfig) Validate() error {
	if len(c.Fields) == 0 {
		return fmt.Errorf("%w: at least one field required", ErrInvalidConfig)
	}
	primaryKeys := 0
	seen := make(map[string]bool, len(c.Fields))
	for _, f := range c.Fields {
		if err := f.Validate(); err != nil {
			return err
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: duplicate field %q", ErrInvalidConfig, f.Name)
		}
		seen[f.Name] = true
		if f.PrimaryKey {
			primaryKeys++
		}
	}
	if primaryKeys != 1 {
		return fmt.Errorf("%w: exactly one primary key field required, got %d", ErrInvalidConfig, primaryKeys)
	}
	if c.VectorDimensions <= 0 {
		return fmt.Errorf("%w: vector dimensions must be positive", ErrInvalidConfig)
	}
	if !c.Strategy.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStrategy, c.Strategy)
	}
	if c.Strategy == StrategyKeyed && c.IndexKey == "" {
		return fmt.Errorf("%w: index key required for strategy %s", ErrInvalidConfig, StrategyKeyed)
	}
	return nil
}

// PrimaryKeyField returns the name of the primary key field, or an
// empty string if the config declares none.
func (c IndexConfig) PrimaryKeyField() string {
	for _, f := range c.Fields {
		if f.PrimaryKey {
			return f.Name
		}
	}
	return ""
}

// DefaultIndexConfig returns the schema tenants receive when they do
// not declare their own: scope identifiers filterable, content
// searchable, chunk id as primary key.
func DefaultIndexConfig() IndexConfig {
	return IndexConfig{
		Fields: []IndexField{
			{Name: "chunk_id", Type: FieldString, PrimaryKey: true, Filterable: true},
			{Name: "document_id", Type: FieldString, Filterable: true},
			{Name: scope.FieldAccountID, Type: FieldString, Filterable: true},
			{Name: scope.FieldUserID, Type: FieldString, Filterable: true},
			{Name: scope.FieldSessionID, Type: FieldString, Filterable: true},
			{Name: scope.FieldIsGlobal, Type: FieldBoolean, Filterable: true},
			{Name: "content", Type: FieldString, Searchable: true},
			{Name: "metadata", Type: FieldString},
		},
		VectorDimensions: DefaultVectorDimensions,
		Strategy:         StrategyDefault,
	}
}

// Customer is one tenant and its declared index configuration.
type Customer struct {
	CustomerID  string      `json:"customer_id"`
	IndexConfig IndexConfig `json:"index_config"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Validate checks the tenant id and the embedded config.
func (c Customer) Validate() error {
	if c.CustomerID == "" {
		return fmt.Errorf("%w: customer ID required", ErrInvalidCustomer)
	}
	if err := c.IndexConfig.Validate(); err != nil {
		return fmt.Errorf("customer %q: %w", c.CustomerID, err)
	}
	return nil
}

// IndexRecord tracks which document ids belong to a tenant's index.
// DocumentIDs is maintained by explicit add/remove calls and may lag
// document records during partial failures.
type IndexRecord struct {
	IndexName   string    `json:"index_name"`
	CustomerID  string    `json:"customer_id"`
	AccountIDs  []string  `json:"account_ids"`
	DocumentIDs []string  `json:"document_ids"`
	AdminID     string    `json:"admin_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DocumentRecord is the per-document metadata record, one per logical
// upload. It is created after successful indexing and hard-deleted on
// document deletion.
type DocumentRecord struct {
	DocumentID string      `json:"document_id"`
	CustomerID string      `json:"customer_id"`
	AccountID  string      `json:"account_id,omitempty"`
	UserID     string      `json:"user_id,omitempty"`
	SessionID  string      `json:"session_id,omitempty"`
	Scope      scope.Scope `json:"scope"`
	StorageURL string      `json:"storage_url"`
	FileSize   int64       `json:"file_size"`
	Indexed    bool        `json:"indexed"`
	ChunkIDs   []string    `json:"chunk_ids"`
	IndexedAt  time.Time   `json:"indexed_at"`
}

// DocumentUnit is a position-ordered, independently embedded fragment
// of a source document. Units are immutable once created and are
// deleted only as part of whole-document deletion.
type DocumentUnit struct {
	DocumentID string         `json:"document_id"`
	ChunkID    string         `json:"chunk_id"`
	Position   int            `json:"position"`
	Content    string         `json:"content"`
	Embedding  []float32      `json:"embedding"`
	CustomerID string         `json:"customer_id"`
	AccountID  string         `json:"account_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	IsGlobal   bool           `json:"is_global"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Version    int            `json:"version"`
}

// ChunkID derives the addressable id for a chunk of a document at the
// given zero-based position.
func ChunkID(documentID string, position int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, position)
}
