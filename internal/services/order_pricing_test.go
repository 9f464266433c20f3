package services

import (
	"context"
	"fmt"
	"testing"
)

func newPricingEngine(t *testing.T, catalog CatalogReader) *OrderPricingEngine {
	t.Helper()

	sequence := 0
	engine, err := NewOrderPricingEngine(OrderPricingEngineDeps{
		Catalog:  catalog,
		Currency: "TWD",
		IDGenerator: func() string {
			sequence++
			return fmt.Sprintf("%026d", sequence)
		},
	})
	if err != nil {
		t.Fatalf("new pricing engine: %v", err)
	}
	return engine
}

func TestPriceItemsBreakdown(t *testing.T) {
	engine := newPricingEngine(t, teaCatalog())

	priced, err := engine.PriceItems(context.Background(), []OrderItemInput{
		{
			ProductID: "prd_milk_tea",
			SizeID:    "siz_l",
			Quantity:  2,
			Selections: []SelectionInput{
				{OptionTypeID: "opt_topping", OptionValueID: "val_pearl"},
				{OptionTypeID: "opt_sugar", OptionValueID: "val_half"},
			},
		},
		{ProductID: "prd_green_tea", SizeID: "siz_m", Quantity: 1},
	}, PricingOptions{})
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if !priced.OK() {
		t.Fatalf("expected clean pass, got %+v", priced.Failures)
	}

	if priced.Breakdown.Currency != "TWD" {
		t.Fatalf("expected TWD, got %s", priced.Breakdown.Currency)
	}
	if priced.Breakdown.Total != 180 {
		t.Fatalf("expected total 180, got %d", priced.Breakdown.Total)
	}
	if priced.Breakdown.ItemCount != 3 {
		t.Fatalf("expected 3 drinks, got %d", priced.Breakdown.ItemCount)
	}

	if len(priced.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(priced.Lines))
	}
	if priced.Lines[0].ID == "" || priced.Lines[0].ID == priced.Lines[1].ID {
		t.Fatalf("expected distinct line ids, got %q and %q", priced.Lines[0].ID, priced.Lines[1].ID)
	}

	if len(priced.Breakdown.Lines) != 2 {
		t.Fatalf("expected 2 breakdown lines, got %d", len(priced.Breakdown.Lines))
	}
	first := priced.Breakdown.Lines[0]
	if first.SizePrice != 60 || first.ExtrasSum != 10 || first.UnitPrice != 70 || first.LineTotal != 140 {
		t.Fatalf("unexpected first breakdown %+v", first)
	}
}

func TestPriceItemsAccumulatesFailuresAcrossItems(t *testing.T) {
	engine := newPricingEngine(t, teaCatalog())

	priced, err := engine.PriceItems(context.Background(), []OrderItemInput{
		{ProductID: "prd_milk_tea", SizeID: "siz_m", Quantity: 1},
		{ProductID: "prd_missing", SizeID: "siz_m", Quantity: 1},
		{ProductID: "prd_milk_tea", SizeID: "siz_m", Quantity: 1, Selections: []SelectionInput{
			{OptionTypeID: "opt_topping", OptionValueID: "val_missing"},
		}},
	}, PricingOptions{})
	if err != nil {
		t.Fatalf("price: %v", err)
	}

	if len(priced.Lines) != 1 {
		t.Fatalf("expected the valid item to price, got %d lines", len(priced.Lines))
	}
	if priced.Breakdown.Total != 50 {
		t.Fatalf("expected partial total 50, got %d", priced.Breakdown.Total)
	}

	if len(priced.Failures) != 2 {
		t.Fatalf("expected 2 failures, got %+v", priced.Failures)
	}
	if priced.Failures[0].Index != 1 || priced.Failures[0].Kind != LineFailureProduct {
		t.Fatalf("unexpected first failure %+v", priced.Failures[0])
	}
	if priced.Failures[1].Index != 2 || priced.Failures[1].Kind != LineFailureOptionValue {
		t.Fatalf("unexpected second failure %+v", priced.Failures[1])
	}

	messages := priced.FailureMessages()
	if len(messages) != 2 || messages[0] != "product not exist" || messages[1] != "option error" {
		t.Fatalf("unexpected messages %v", messages)
	}
}

func TestPriceItemsRejectsUnknownOptionTypeWithoutCatalogRead(t *testing.T) {
	catalog := teaCatalog()
	engine := newPricingEngine(t, catalog)

	priced, err := engine.PriceItems(context.Background(), []OrderItemInput{
		{ProductID: "prd_green_tea", SizeID: "siz_m", Quantity: 1, Selections: []SelectionInput{
			{OptionTypeID: "opt_topping", OptionValueID: "val_pearl"},
		}},
	}, PricingOptions{})
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if len(priced.Failures) != 1 || priced.Failures[0].Kind != LineFailureOptionType {
		t.Fatalf("expected type failure, got %+v", priced.Failures)
	}
}

func TestPriceItemsSurfacesInfrastructureErrors(t *testing.T) {
	catalog := teaCatalog()
	engine := newPricingEngine(t, &failingCatalogReader{inner: catalog})

	_, err := engine.PriceItems(context.Background(), []OrderItemInput{
		{ProductID: "prd_milk_tea", SizeID: "siz_m", Quantity: 1},
	}, PricingOptions{})
	if err == nil {
		t.Fatalf("expected error for unavailable catalog")
	}
}

func TestPriceItemsEmptyInput(t *testing.T) {
	engine := newPricingEngine(t, teaCatalog())

	priced, err := engine.PriceItems(context.Background(), nil, PricingOptions{})
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if !priced.OK() || priced.Breakdown.Total != 0 || len(priced.Lines) != 0 {
		t.Fatalf("expected empty result, got %+v", priced)
	}
}

type failingCatalogReader struct {
	inner CatalogReader
}

func (f *failingCatalogReader) GetProduct(context.Context, string, bool) (Product, error) {
	return Product{}, &orderRepoError{msg: "catalog unavailable", unavailable: true}
}

func (f *failingCatalogReader) GetOptionType(ctx context.Context, id string) (OptionType, error) {
	return f.inner.GetOptionType(ctx, id)
}
