package repositories

import (
	"context"
	"time"

	domain "github.com/teahouse/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Catalog() CatalogRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order headers together with their line items.
// Create, Replace and Delete are atomic: either the header and every item
// document commit, or nothing does.
type OrderRepository interface {
	// Create writes a new order header and its full item set in one transaction.
	Create(ctx context.Context, order domain.Order, items []domain.OrderLineItem) error
	// Replace updates the header and swaps the entire item set in one transaction.
	// It must fail with a conflict error when the stored order is already in a
	// terminal status at commit time.
	Replace(ctx context.Context, order domain.Order, items []domain.OrderLineItem) error
	// Delete removes the header and every item document in one transaction.
	Delete(ctx context.Context, orderID string) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ListItems(ctx context.Context, orderID string) ([]domain.OrderLineItem, error)
	ListSummaries(ctx context.Context, filter OrderListFilter, pager domain.Pagination) (domain.CursorPage[domain.OrderSummary], error)
}

// OrderListFilter mirrors domain.OrderListFilter at the repository boundary.
type OrderListFilter struct {
	UserID    string
	Statuses  []domain.OrderStatus
	CreatedAt domain.RangeQuery[time.Time]
	Sort      domain.SortOrder
}

// CatalogRepository bundles product, category and option type storage.
type CatalogRepository interface {
	// GetProduct retrieves a product by id. When includeInactive is false a
	// soft-deleted product is reported as not found.
	GetProduct(ctx context.Context, productID string, includeInactive bool) (domain.Product, error)
	ListProducts(ctx context.Context, filter ProductFilter, pager domain.Pagination) (domain.CursorPage[domain.Product], error)
	InsertProduct(ctx context.Context, product domain.Product) error
	UpdateProduct(ctx context.Context, product domain.Product) error
	// SoftDeleteProduct flips the product inactive while keeping the document
	// resolvable for historical order reads.
	SoftDeleteProduct(ctx context.Context, productID string, deletedAt time.Time) error

	GetCategory(ctx context.Context, categoryID string) (domain.Category, error)
	ListCategories(ctx context.Context, includeInactive bool) ([]domain.Category, error)
	UpsertCategory(ctx context.Context, category domain.Category) (domain.Category, error)

	GetOptionType(ctx context.Context, optionTypeID string) (domain.OptionType, error)
	ListOptionTypes(ctx context.Context, includeInactive bool) ([]domain.OptionType, error)
	UpsertOptionType(ctx context.Context, optionType domain.OptionType) (domain.OptionType, error)
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	CategoryID      string
	IncludeInactive bool
	NameQuery       string
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
