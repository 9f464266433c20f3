package domain

// PricingBreakdown captures the aggregated monetary results of pricing an order.
type PricingBreakdown struct {
	Currency  string
	Total     int64
	ItemCount int
	Lines     []LinePricingBreakdown
}

// LinePricingBreakdown stores the per-line pricing outputs after resolving
// the catalog snapshot for a requested item.
type LinePricingBreakdown struct {
	ProductID string
	SizeID    string
	Quantity  int
	SizePrice int64
	ExtrasSum int64
	UnitPrice int64
	LineTotal int64
}
