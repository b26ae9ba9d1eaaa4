package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docidx/internal/docstore"
	"github.com/fyrsmithlabs/docidx/internal/schema"
)

// Customers handles tenant onboarding and index config management.
type Customers struct {
	store     *docstore.Store
	lifecycle *Lifecycle
	logger    *zap.Logger
}

// NewCustomers creates a customer registry. Registration provisions
// the tenant's index through the lifecycle manager.
func NewCustomers(store *docstore.Store, lifecycle *Lifecycle, logger *zap.Logger) *Customers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Customers{store: store, lifecycle: lifecycle, logger: logger}
}

// Register onboards a tenant: validates and stores the declared index
// config, then provisions the index. An already-registered tenant id
// fails without touching the stored record. A nil config gets the
// default schema.
func (c *Customers) Register(ctx context.Context, customerID, adminID string, cfg *schema.IndexConfig) (*schema.Customer, error) {
	config := schema.DefaultIndexConfig()
	if cfg != nil {
		config = *cfg
		config.ApplyDefaults()
	}

	now := time.Now().UTC()
	customer := &schema.Customer{
		CustomerID:  customerID,
		IndexConfig: config,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := customer.Validate(); err != nil {
		return nil, err
	}

	if err := c.store.CreateCustomer(ctx, customer); err != nil {
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: %q", ErrCustomerExists, customerID)
		}
		return nil, err
	}

	indexName, err := c.lifecycle.EnsureIndex(ctx, customerID, adminID)
	if err != nil {
		return nil, fmt.Errorf("provisioning index for %q: %w", customerID, err)
	}

	c.logger.Info("customer registered",
		zap.String("customer_id", customerID),
		zap.String("index", indexName),
		zap.String("strategy", string(config.Strategy)),
	)
	return customer, nil
}

// Get fetches a registered customer.
func (c *Customers) Get(ctx context.Context, customerID string) (*schema.Customer, error) {
	return c.store.GetCustomer(ctx, customerID)
}

// UpdateConfig replaces a customer's index config. The customer must
// already exist; this is the only mutation path for stored configs.
func (c *Customers) UpdateConfig(ctx context.Context, customerID string, cfg schema.IndexConfig) (*schema.Customer, error) {
	customer, err := c.store.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	customer.IndexConfig = cfg
	customer.UpdatedAt = time.Now().UTC()
	if err := customer.Validate(); err != nil {
		return nil, err
	}

	if err := c.store.SaveCustomer(ctx, customer); err != nil {
		return nil, err
	}
	c.logger.Info("customer config updated", zap.String("customer_id", customerID))
	return customer, nil
}

// Deregister removes a customer's stored record. Indexed documents and
// the index itself are left in place.
func (c *Customers) Deregister(ctx context.Context, customerID string) error {
	if err := c.store.DeleteCustomer(ctx, customerID); err != nil {
		return err
	}
	c.logger.Info("customer deregistered", zap.String("customer_id", customerID))
	return nil
}

// ListIDs returns all registered customer ids.
func (c *Customers) ListIDs(ctx context.Context) ([]string, error) {
	return c.store.ListCustomerIDs(ctx)
}
