package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	domain "github.com/teahouse/api/internal/domain"
	"github.com/teahouse/api/internal/repositories"
)

const lineItemIDPrefix = "itm_"

// LineFailureKind categorises why a requested item could not be priced.
type LineFailureKind int

const (
	// LineFailureProduct marks a product that could not be resolved.
	LineFailureProduct LineFailureKind = iota
	// LineFailureSize marks a size that does not belong to the product.
	LineFailureSize
	// LineFailureOptionType marks an option type the product does not accept.
	LineFailureOptionType
	// LineFailureOptionValue marks an answer outside the option type's values.
	LineFailureOptionValue
	// LineFailureDuplicate marks a second answer for the same option type.
	LineFailureDuplicate
)

// Message returns the stable client-facing message for the failure kind.
func (k LineFailureKind) Message() string {
	switch k {
	case LineFailureProduct:
		return "product not exist"
	case LineFailureSize:
		return "size error"
	case LineFailureOptionType:
		return "type error"
	case LineFailureOptionValue:
		return "option error"
	case LineFailureDuplicate:
		return "duplicate answer"
	}
	return "item error"
}

// LineFailure records one rejected item in input order.
type LineFailure struct {
	Index   int
	Kind    LineFailureKind
	Message string
}

// PricingOptions tunes a pricing pass.
type PricingOptions struct {
	// IncludeInactive lets the pass resolve soft-deleted products, sizes and
	// option values. Recomputation of existing orders sets it so historical
	// menu entries stay priceable.
	IncludeInactive bool
}

// PricedOrder is the outcome of pricing a requested item set. Lines holds the
// successfully priced items in input order; Failures lists every rejected item
// in input order. Both can be non-empty at once.
type PricedOrder struct {
	Lines     []domain.OrderLineItem
	Breakdown domain.PricingBreakdown
	Failures  []LineFailure
}

// OK reports whether every requested item priced successfully.
func (p PricedOrder) OK() bool {
	return len(p.Failures) == 0
}

// FailureMessages returns the rejection messages preserving input order.
func (p PricedOrder) FailureMessages() []string {
	if len(p.Failures) == 0 {
		return nil
	}
	messages := make([]string, 0, len(p.Failures))
	for _, failure := range p.Failures {
		messages = append(messages, failure.Message)
	}
	return messages
}

// OrderPricingEngine builds priced line items from requested items, walking
// every entry and accumulating failures instead of stopping at the first one.
type OrderPricingEngine struct {
	catalog  CatalogReader
	currency string
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// OrderPricingEngineDeps bundles collaborators for the pricing engine.
type OrderPricingEngineDeps struct {
	Catalog     CatalogReader
	Currency    string
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

// NewOrderPricingEngine wires dependencies into a pricing engine instance.
func NewOrderPricingEngine(deps OrderPricingEngineDeps) (*OrderPricingEngine, error) {
	if deps.Catalog == nil {
		return nil, errors.New("order pricing engine: catalog reader is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		return nil, errors.New("order pricing engine: currency is required")
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &OrderPricingEngine{
		catalog:  deps.Catalog,
		currency: currency,
		newID:    idGen,
		logger:   logger,
	}, nil
}

// PriceItems resolves and prices every requested item. Failures caused by the
// request (unknown product, wrong size, bad answers) accumulate in the result;
// only infrastructure faults return a non-nil error.
func (e *OrderPricingEngine) PriceItems(ctx context.Context, items []OrderItemInput, opts PricingOptions) (PricedOrder, error) {
	priced := PricedOrder{
		Breakdown: domain.PricingBreakdown{Currency: e.currency},
	}
	if len(items) == 0 {
		return priced, nil
	}

	for index, item := range items {
		line, failure, err := e.buildLineItem(ctx, item, opts)
		if err != nil {
			return PricedOrder{}, err
		}
		if failure != nil {
			failure.Index = index
			priced.Failures = append(priced.Failures, *failure)
			continue
		}

		priced.Lines = append(priced.Lines, line)
		priced.Breakdown.Total += line.LineTotal
		priced.Breakdown.ItemCount += line.Quantity
		priced.Breakdown.Lines = append(priced.Breakdown.Lines, domain.LinePricingBreakdown{
			ProductID: line.ProductID,
			SizeID:    line.SizeID,
			Quantity:  line.Quantity,
			SizePrice: line.SizePrice,
			ExtrasSum: line.UnitPrice - line.SizePrice,
			UnitPrice: line.UnitPrice,
			LineTotal: line.LineTotal,
		})
	}

	return priced, nil
}

// buildLineItem loads the catalog snapshot for one requested item and prices it.
func (e *OrderPricingEngine) buildLineItem(ctx context.Context, item OrderItemInput, opts PricingOptions) (domain.OrderLineItem, *LineFailure, error) {
	productID := strings.TrimSpace(item.ProductID)

	product, err := e.catalog.GetProduct(ctx, productID, opts.IncludeInactive)
	if err != nil {
		if isNotFound(err) {
			return domain.OrderLineItem{}, &LineFailure{Kind: LineFailureProduct, Message: LineFailureProduct.Message()}, nil
		}
		return domain.OrderLineItem{}, nil, fmt.Errorf("order pricing: load product %s: %w", productID, err)
	}

	optionTypes, failure, err := e.loadOptionTypes(ctx, product, item.Selections)
	if err != nil {
		return domain.OrderLineItem{}, nil, err
	}
	if failure != nil {
		return domain.OrderLineItem{}, failure, nil
	}

	resolved, err := resolveLineItem(product, optionTypes, item.SizeID, item.Selections, opts.IncludeInactive)
	if err != nil {
		kind, ok := classifyResolveError(err)
		if !ok {
			return domain.OrderLineItem{}, nil, err
		}
		return domain.OrderLineItem{}, &LineFailure{Kind: kind, Message: kind.Message()}, nil
	}

	line := domain.OrderLineItem{
		ID:          lineItemIDPrefix + e.newID(),
		ProductID:   product.ID,
		ProductName: resolved.ProductName,
		SizeID:      resolved.SizeID,
		SizeName:    resolved.SizeName,
		SizePrice:   resolved.SizePrice,
		Selections:  resolved.Selections,
		Remark:      strings.TrimSpace(item.Remark),
		Quantity:    item.Quantity,
		UnitPrice:   resolved.UnitPrice,
		LineTotal:   resolved.UnitPrice * int64(item.Quantity),
	}
	return line, nil, nil
}

// loadOptionTypes fetches the option types referenced by the selections. Types
// the product does not accept are rejected without a catalog read.
func (e *OrderPricingEngine) loadOptionTypes(ctx context.Context, product domain.Product, selections []SelectionInput) (map[string]domain.OptionType, *LineFailure, error) {
	if len(selections) == 0 {
		return nil, nil, nil
	}

	optionTypes := make(map[string]domain.OptionType, len(selections))
	for _, selection := range selections {
		typeID := strings.TrimSpace(selection.OptionTypeID)
		if _, ok := optionTypes[typeID]; ok {
			continue
		}
		if !product.AllowsOptionType(typeID) {
			return nil, &LineFailure{Kind: LineFailureOptionType, Message: LineFailureOptionType.Message()}, nil
		}

		optionType, err := e.catalog.GetOptionType(ctx, typeID)
		if err != nil {
			if isNotFound(err) {
				return nil, &LineFailure{Kind: LineFailureOptionType, Message: LineFailureOptionType.Message()}, nil
			}
			return nil, nil, fmt.Errorf("order pricing: load option type %s: %w", typeID, err)
		}
		optionTypes[typeID] = optionType
	}
	return optionTypes, nil, nil
}

func classifyResolveError(err error) (LineFailureKind, bool) {
	switch {
	case errors.Is(err, ErrLineSizeNotFound):
		return LineFailureSize, true
	case errors.Is(err, ErrLineOptionTypeNotAllowed):
		return LineFailureOptionType, true
	case errors.Is(err, ErrLineOptionValueNotFound):
		return LineFailureOptionValue, true
	case errors.Is(err, ErrLineDuplicateSelection):
		return LineFailureDuplicate, true
	case errors.Is(err, ErrLineProductNotFound):
		return LineFailureProduct, true
	}
	return 0, false
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
