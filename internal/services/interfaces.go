package services

import (
	"context"
	"time"

	domain "github.com/teahouse/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination           = domain.Pagination
	SortOrder            = domain.SortOrder
	Category             = domain.Category
	Product              = domain.Product
	ProductSize          = domain.ProductSize
	OptionType           = domain.OptionType
	OptionValue          = domain.OptionValue
	Order                = domain.Order
	OrderStatus          = domain.OrderStatus
	OrderSummary         = domain.OrderSummary
	OrderLineItem        = domain.OrderLineItem
	OptionSelection      = domain.OptionSelection
	PricingBreakdown     = domain.PricingBreakdown
	LinePricingBreakdown = domain.LinePricingBreakdown
	SystemHealthReport   = domain.SystemHealthReport
)

// Result codes reported to clients for business outcomes. The values are part
// of the public API contract and must stay stable.
const (
	// ResultCodeOK reports a successful operation.
	ResultCodeOK = 0
	// ResultCodeItemError covers item resolution failures and generic rejections.
	ResultCodeItemError = -1
	// ResultCodeImmutable reports mutation of an order in a terminal status.
	ResultCodeImmutable = -2
	// ResultCodeProductNotFound reports a missing product on the update path.
	ResultCodeProductNotFound = -3
	// ResultCodeSizeError reports a size that does not belong to the product.
	ResultCodeSizeError = -4
	// ResultCodeValidation reports request validation failures composed in handlers.
	ResultCodeValidation = -6
)

// Result is the business outcome envelope returned alongside order operations.
// A non-zero code carries one message per rejection in input order.
type Result struct {
	Code   int
	Errors []string
}

// OK reports whether the result carries no rejection.
func (r Result) OK() bool {
	return r.Code == ResultCodeOK && len(r.Errors) == 0
}

// OKResult returns the success envelope.
func OKResult() Result {
	return Result{Code: ResultCodeOK}
}

// FailResult builds a rejection envelope with the provided code and messages.
func FailResult(code int, messages ...string) Result {
	return Result{Code: code, Errors: messages}
}

// OrderService orchestrates order construction, pricing, lifecycle gating and
// atomic persistence. Business rejections surface through Result; returned
// errors signal infrastructure faults only.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (OrderView, Result, error)
	Update(ctx context.Context, cmd UpdateOrderCommand) (OrderView, Result, error)
	Delete(ctx context.Context, cmd DeleteOrderCommand) (Result, error)
	Get(ctx context.Context, orderID string) (OrderView, error)
	List(ctx context.Context, query OrderListQuery) (domain.CursorPage[OrderSummary], error)
}

// CatalogService manages products, categories and option types for the menu.
type CatalogService interface {
	GetProduct(ctx context.Context, productID string, includeInactive bool) (Product, error)
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error)
	CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, cmd DeleteProductCommand) error

	GetCategory(ctx context.Context, categoryID string) (Category, error)
	ListCategories(ctx context.Context, includeInactive bool) ([]Category, error)
	UpsertCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error)

	GetOptionType(ctx context.Context, optionTypeID string) (OptionType, error)
	ListOptionTypes(ctx context.Context, includeInactive bool) ([]OptionType, error)
	UpsertOptionType(ctx context.Context, cmd UpsertOptionTypeCommand) (OptionType, error)
}

// CatalogReader is the read surface the pricing engine resolves snapshots
// through. The Firestore catalog repository satisfies it directly and the
// TTL cache wraps it.
type CatalogReader interface {
	GetProduct(ctx context.Context, productID string, includeInactive bool) (domain.Product, error)
	GetOptionType(ctx context.Context, optionTypeID string) (domain.OptionType, error)
}

// CatalogInvalidator drops cached catalog entries after write operations.
type CatalogInvalidator interface {
	InvalidateProduct(productID string)
	InvalidateOptionType(optionTypeID string)
}

// CounterService hands out transaction-safe sequence numbers with formatting helpers.
type CounterService interface {
	Next(ctx context.Context, scope, name string, opts CounterGenerationOptions) (CounterValue, error)
	NextOrderNumber(ctx context.Context) (string, error)
}

// CounterGenerationOptions controls how counter values are incremented and formatted.
type CounterGenerationOptions struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
	Prefix       string
	Suffix       string
	PadLength    int
	Formatter    func(now time.Time, value int64) string
}

// CounterValue carries the raw sequence value and its formatted representation.
type CounterValue struct {
	Value     int64
	Formatted string
}

// SystemService aggregates utility endpoints (health checks, counters).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
	NextCounterValue(ctx context.Context, cmd CounterCommand) (int64, error)
}

// OrderEventPublisher publishes order lifecycle events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, message OrderEventMessage) (string, error)
}

// OrderEventMessage is the payload emitted on the order events topic.
type OrderEventMessage struct {
	Event       string    `json:"event"`
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	UserID      string    `json:"userId"`
	Status      string    `json:"status"`
	TotalAmount int64     `json:"totalAmount"`
	Currency    string    `json:"currency"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// OrderView pairs an order header with its full line item set.
type OrderView struct {
	Order Order
	Items []OrderLineItem
}

// SelectionInput is a requested option answer within an order item.
type SelectionInput struct {
	OptionTypeID  string
	OptionValueID string
}

// OrderItemInput is a requested drink within a create or update command.
type OrderItemInput struct {
	ProductID  string
	SizeID     string
	Quantity   int
	Remark     string
	Selections []SelectionInput
}

// CreateOrderCommand carries the inputs for placing a new order.
type CreateOrderCommand struct {
	UserID      string
	Title       string
	ContactName string
	Phone       string
	Address     string
	Note        string
	OrderDate   time.Time
	Items       []OrderItemInput
	Metadata    map[string]any
}

// UpdateOrderCommand recomputes an order from scratch, replacing every line item.
type UpdateOrderCommand struct {
	OrderID     string
	ActorID     string
	Title       string
	ContactName string
	Phone       string
	Address     string
	Note        string
	OrderDate   time.Time
	Status      OrderStatus
	Items       []OrderItemInput
	Metadata    map[string]any
}

// DeleteOrderCommand removes an order and its items.
type DeleteOrderCommand struct {
	OrderID string
	ActorID string
}

// OrderListQuery narrows and pages order summary listings.
type OrderListQuery struct {
	UserID     string
	Statuses   []OrderStatus
	CreatedAt  domain.RangeQuery[time.Time]
	Sort       SortOrder
	Pagination Pagination
}

// ProductSizeInput describes a size row on a product write.
type ProductSizeInput struct {
	ID    string
	Name  string
	Price int64
}

// CreateProductCommand carries the inputs for adding a menu entry.
type CreateProductCommand struct {
	Name          string
	Description   string
	CategoryID    string
	Sizes         []ProductSizeInput
	OptionTypeIDs []string
	ActorID       string
}

// UpdateProductCommand mutates an existing menu entry.
type UpdateProductCommand struct {
	ProductID     string
	Name          string
	Description   string
	CategoryID    string
	Sizes         []ProductSizeInput
	OptionTypeIDs []string
	Active        *bool
	ActorID       string
}

// DeleteProductCommand soft-deletes a menu entry.
type DeleteProductCommand struct {
	ProductID string
	ActorID   string
}

// ProductListFilter narrows product listings.
type ProductListFilter struct {
	CategoryID      string
	IncludeInactive bool
	NameQuery       string
	Pagination      Pagination
}

// UpsertCategoryCommand creates or updates a category.
type UpsertCategoryCommand struct {
	Category Category
	ActorID  string
}

// UpsertOptionTypeCommand creates or updates an option type with its values.
type UpsertOptionTypeCommand struct {
	OptionType OptionType
	ActorID    string
}

// CounterCommand requests the next raw value for an explicit counter id.
type CounterCommand struct {
	CounterID string
	Step      int64
}
