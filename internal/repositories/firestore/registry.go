package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/teahouse/api/internal/platform/firestore"
	"github.com/teahouse/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the accessor
// interface consumed by the service layer.
type Registry struct {
	provider *pfirestore.Provider
	orders   *OrderRepository
	catalog  *CatalogRepository
	counters *CounterRepository
	health   repositories.HealthRepository
}

// RegistryDeps carries the inputs for NewRegistry.
type RegistryDeps struct {
	Provider *pfirestore.Provider
	Health   repositories.HealthRepository
}

// NewRegistry builds every Firestore repository on a shared provider.
func NewRegistry(deps RegistryDeps) (*Registry, error) {
	if deps.Provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}
	if deps.Health == nil {
		return nil, errors.New("registry requires health repository")
	}

	orders, err := NewOrderRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	catalog, err := NewCatalogRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(deps.Provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider: deps.Provider,
		orders:   orders,
		catalog:  catalog,
		counters: counters,
		health:   deps.Health,
	}, nil
}

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) Catalog() repositories.CatalogRepository { return r.catalog }

func (r *Registry) Counters() repositories.CounterRepository { return r.counters }

func (r *Registry) Health() repositories.HealthRepository { return r.health }

// RunInTx executes fn as a single unit. The mutating repository operations
// already commit atomically inside their own Firestore transactions, so no
// outer transaction is opened here; nesting RunTransaction is not supported
// by the client.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("registry: transaction function is required")
	}
	return fn(ctx)
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

var _ repositories.Registry = (*Registry)(nil)
