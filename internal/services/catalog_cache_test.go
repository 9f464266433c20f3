package services

import (
	"context"
	"testing"
	"time"

	domain "github.com/teahouse/api/internal/domain"
)

type countingCatalogReader struct {
	inner        CatalogReader
	productReads int
	optionReads  int
}

func (c *countingCatalogReader) GetProduct(ctx context.Context, productID string, includeInactive bool) (domain.Product, error) {
	c.productReads++
	return c.inner.GetProduct(ctx, productID, includeInactive)
}

func (c *countingCatalogReader) GetOptionType(ctx context.Context, optionTypeID string) (domain.OptionType, error) {
	c.optionReads++
	return c.inner.GetOptionType(ctx, optionTypeID)
}

func newCacheFixture(t *testing.T) (*CatalogCache, *countingCatalogReader, *time.Time) {
	t.Helper()

	now := time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC)
	source := &countingCatalogReader{inner: teaCatalog()}
	cache, err := NewCatalogCache(CatalogCacheDeps{
		Source: source,
		TTL:    10 * time.Minute,
		Clock:  func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new catalog cache: %v", err)
	}
	return cache, source, &now
}

func TestCatalogCacheServesFromCache(t *testing.T) {
	cache, source, _ := newCacheFixture(t)
	ctx := context.Background()

	first, err := cache.GetProduct(ctx, "prd_milk_tea", false)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	second, err := cache.GetProduct(ctx, "prd_milk_tea", false)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if source.productReads != 1 {
		t.Fatalf("expected one source read, got %d", source.productReads)
	}
	if first.Name != second.Name {
		t.Fatalf("expected identical snapshots")
	}

	if _, err := cache.GetOptionType(ctx, "opt_topping"); err != nil {
		t.Fatalf("get option type: %v", err)
	}
	if _, err := cache.GetOptionType(ctx, "opt_topping"); err != nil {
		t.Fatalf("get option type: %v", err)
	}
	if source.optionReads != 1 {
		t.Fatalf("expected one option type read, got %d", source.optionReads)
	}
}

func TestCatalogCacheKeysOnInactiveFlag(t *testing.T) {
	cache, source, _ := newCacheFixture(t)
	ctx := context.Background()

	if _, err := cache.GetProduct(ctx, "prd_milk_tea", false); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := cache.GetProduct(ctx, "prd_milk_tea", true); err != nil {
		t.Fatalf("get: %v", err)
	}
	if source.productReads != 2 {
		t.Fatalf("expected separate entries per flag, got %d reads", source.productReads)
	}
}

func TestCatalogCacheExpiresEntries(t *testing.T) {
	cache, source, now := newCacheFixture(t)
	ctx := context.Background()

	if _, err := cache.GetProduct(ctx, "prd_milk_tea", false); err != nil {
		t.Fatalf("get: %v", err)
	}
	*now = now.Add(11 * time.Minute)
	if _, err := cache.GetProduct(ctx, "prd_milk_tea", false); err != nil {
		t.Fatalf("get: %v", err)
	}
	if source.productReads != 2 {
		t.Fatalf("expected reload after expiry, got %d reads", source.productReads)
	}
}

func TestCatalogCacheInvalidation(t *testing.T) {
	cache, source, _ := newCacheFixture(t)
	ctx := context.Background()

	if _, err := cache.GetProduct(ctx, "prd_milk_tea", false); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := cache.GetProduct(ctx, "prd_milk_tea", true); err != nil {
		t.Fatalf("get: %v", err)
	}
	cache.InvalidateProduct("prd_milk_tea")
	if _, err := cache.GetProduct(ctx, "prd_milk_tea", false); err != nil {
		t.Fatalf("get: %v", err)
	}
	if source.productReads != 3 {
		t.Fatalf("expected reload after invalidation, got %d reads", source.productReads)
	}

	if _, err := cache.GetOptionType(ctx, "opt_topping"); err != nil {
		t.Fatalf("get option type: %v", err)
	}
	cache.InvalidateOptionType("opt_topping")
	if _, err := cache.GetOptionType(ctx, "opt_topping"); err != nil {
		t.Fatalf("get option type: %v", err)
	}
	if source.optionReads != 2 {
		t.Fatalf("expected option reload after invalidation, got %d reads", source.optionReads)
	}
}

func TestCatalogCacheDoesNotCacheMisses(t *testing.T) {
	cache, source, _ := newCacheFixture(t)
	ctx := context.Background()

	if _, err := cache.GetProduct(ctx, "prd_missing", false); err == nil {
		t.Fatalf("expected miss error")
	}
	if _, err := cache.GetProduct(ctx, "prd_missing", false); err == nil {
		t.Fatalf("expected miss error")
	}
	if source.productReads != 2 {
		t.Fatalf("expected misses to hit the source, got %d reads", source.productReads)
	}
}
