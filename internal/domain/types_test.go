package domain

import (
	"testing"
	"time"
)

func TestOrderStatusTerminal(t *testing.T) {
	cases := []struct {
		status   OrderStatus
		terminal bool
	}{
		{OrderStatusPending, false},
		{OrderStatusProcessing, false},
		{OrderStatusCompleted, true},
		{OrderStatusCanceled, true},
	}

	for _, tc := range cases {
		if got := tc.status.Terminal(); got != tc.terminal {
			t.Fatalf("%s: expected terminal=%v got %v", tc.status, tc.terminal, got)
		}
		if !tc.status.Valid() {
			t.Fatalf("%s: expected valid status", tc.status)
		}
	}
}

func TestOrderStatusValidRejectsUnknown(t *testing.T) {
	for _, status := range []OrderStatus{"", "shipped", "PENDING"} {
		if status.Valid() {
			t.Fatalf("expected %q to be invalid", status)
		}
	}
}

func TestProductSizeLookup(t *testing.T) {
	product := Product{
		ID: "prd_black",
		Sizes: []ProductSize{
			{ID: "siz_m", Name: "M", Price: 40},
			{ID: "siz_l", Name: "L", Price: 50},
		},
		OptionTypeIDs: []string{"opt_sugar"},
	}

	size, ok := product.Size("siz_l")
	if !ok || size.Price != 50 {
		t.Fatalf("expected siz_l at 50, got %#v ok=%v", size, ok)
	}
	if _, ok := product.Size("siz_xl"); ok {
		t.Fatalf("expected siz_xl to be absent")
	}

	if !product.AllowsOptionType("opt_sugar") {
		t.Fatalf("expected opt_sugar to be allowed")
	}
	if product.AllowsOptionType("opt_ice") {
		t.Fatalf("expected opt_ice to be rejected")
	}
}

func TestOptionTypeValueLookup(t *testing.T) {
	optionType := OptionType{
		ID: "opt_sugar",
		Values: []OptionValue{
			{ID: "val_full", Name: "full sugar"},
			{ID: "val_half", Name: "half sugar", ExtraPrice: 0},
		},
	}

	value, ok := optionType.Value("val_half")
	if !ok || value.Name != "half sugar" {
		t.Fatalf("expected half sugar, got %#v ok=%v", value, ok)
	}
	if _, ok := optionType.Value("val_quarter"); ok {
		t.Fatalf("expected val_quarter to be absent")
	}
}

func TestOrderSummaryProjection(t *testing.T) {
	createdAt := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	order := Order{
		ID:          "ord_1",
		Number:      "TEA-2025-000042",
		UserID:      "user-1",
		Title:       "office run",
		Phone:       "0912345678",
		Address:     "somewhere",
		Status:      OrderStatusPending,
		Currency:    "TWD",
		TotalAmount: 100,
		ItemCount:   2,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt.Add(time.Minute),
	}

	summary := order.Summary()
	if summary.ID != order.ID || summary.Number != order.Number {
		t.Fatalf("unexpected identity fields: %#v", summary)
	}
	if summary.Status != OrderStatusPending || summary.TotalAmount != 100 || summary.ItemCount != 2 {
		t.Fatalf("unexpected projection: %#v", summary)
	}
	if !summary.CreatedAt.Equal(createdAt) || !summary.UpdatedAt.Equal(createdAt.Add(time.Minute)) {
		t.Fatalf("unexpected timestamps: %#v", summary)
	}
}
