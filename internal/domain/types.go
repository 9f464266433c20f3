package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Category groups products on the menu.
type Category struct {
	ID          string
	Name        string
	Description string
	SortWeight  int
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductSize is a purchasable variant of a product carrying its own price.
type ProductSize struct {
	ID     string
	Name   string
	Price  int64
	Active bool
}

// Product represents a menu entry together with its sizes and the option
// types a customer may answer when ordering it.
type Product struct {
	ID            string
	CategoryID    string
	Name          string
	Description   string
	Sizes         []ProductSize
	OptionTypeIDs []string
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Size returns the size with the given id, if present.
func (p Product) Size(id string) (ProductSize, bool) {
	for _, size := range p.Sizes {
		if size.ID == id {
			return size, true
		}
	}
	return ProductSize{}, false
}

// AllowsOptionType reports whether the product accepts answers for the option type.
func (p Product) AllowsOptionType(id string) bool {
	for _, typeID := range p.OptionTypeIDs {
		if typeID == id {
			return true
		}
	}
	return false
}

// OptionValue is a single choice within an option type, such as "half sugar".
type OptionValue struct {
	ID         string
	Name       string
	ExtraPrice int64
	Active     bool
}

// OptionType is a customisation axis shared across products, such as
// sweetness or ice level, with its selectable values embedded.
type OptionType struct {
	ID        string
	Name      string
	Values    []OptionValue
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Value returns the value with the given id, if present.
func (t OptionType) Value(id string) (OptionValue, bool) {
	for _, value := range t.Values {
		if value.ID == id {
			return value, true
		}
	}
	return OptionValue{}, false
}

// OrderStatus enumerates the lifecycle states an order moves through.
type OrderStatus string

const (
	// OrderStatusPending marks a freshly placed order awaiting the shop.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing marks an order the shop has started preparing.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusCompleted marks a fulfilled order.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCanceled marks an abandoned order.
	OrderStatusCanceled OrderStatus = "canceled"
)

// Terminal reports whether the status permits no further mutation.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCanceled
}

// Valid reports whether the status is one of the known lifecycle states.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusCompleted, OrderStatusCanceled:
		return true
	}
	return false
}

// OptionSelection snapshots a chosen option value at the moment of ordering
// so later catalog edits cannot change what the customer agreed to pay.
type OptionSelection struct {
	OptionTypeID   string
	OptionTypeName string
	OptionValueID  string
	OptionValue    string
	ExtraPrice     int64
}

// OrderLineItem is a priced drink within an order, carrying denormalised
// catalog names and prices captured when the line was built.
type OrderLineItem struct {
	ID          string
	ProductID   string
	ProductName string
	SizeID      string
	SizeName    string
	SizePrice   int64
	Selections  []OptionSelection
	Remark      string
	Quantity    int
	UnitPrice   int64
	LineTotal   int64
}

// Order is the aggregate header persisted alongside its line items.
type Order struct {
	ID          string
	Number      string
	UserID      string
	Title       string
	ContactName string
	Phone       string
	Address     string
	Note        string
	// OrderDate is the requested delivery time; zero when the customer left it open.
	OrderDate   time.Time
	Status      OrderStatus
	Currency    string
	TotalAmount int64
	ItemCount   int
	Metadata    map[string]any
	CreatedBy   string
	ModifiedBy  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OrderSummary is the listing projection of an order without its items.
type OrderSummary struct {
	ID          string
	Number      string
	UserID      string
	Title       string
	Status      OrderStatus
	Currency    string
	TotalAmount int64
	ItemCount   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OrderListFilter narrows order listings for customer and staff views.
type OrderListFilter struct {
	UserID    string
	Statuses  []OrderStatus
	CreatedAt RangeQuery[time.Time]
	Sort      SortOrder
}

// Summary projects the order header into its listing shape.
func (o Order) Summary() OrderSummary {
	return OrderSummary{
		ID:          o.ID,
		Number:      o.Number,
		UserID:      o.UserID,
		Title:       o.Title,
		Status:      o.Status,
		Currency:    o.Currency,
		TotalAmount: o.TotalAmount,
		ItemCount:   o.ItemCount,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}
