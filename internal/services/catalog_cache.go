package services

import (
	"context"
	"errors"
	"sync"
	"time"

	domain "github.com/teahouse/api/internal/domain"
)

const defaultCatalogCacheTTL = 10 * time.Minute

type productCacheKey struct {
	productID       string
	includeInactive bool
}

type productCacheEntry struct {
	product   domain.Product
	expiresAt time.Time
}

type optionTypeCacheEntry struct {
	optionType domain.OptionType
	expiresAt  time.Time
}

// CatalogCache is a read-through TTL cache in front of a CatalogReader.
// Catalog write operations call the invalidation hooks so stale snapshots
// never outlive an edit by more than one read.
type CatalogCache struct {
	source CatalogReader
	ttl    time.Duration
	now    func() time.Time

	mu          sync.RWMutex
	products    map[productCacheKey]productCacheEntry
	optionTypes map[string]optionTypeCacheEntry
}

// CatalogCacheDeps bundles collaborators for the catalog cache.
type CatalogCacheDeps struct {
	Source CatalogReader
	TTL    time.Duration
	Clock  func() time.Time
}

var (
	_ CatalogReader      = (*CatalogCache)(nil)
	_ CatalogInvalidator = (*CatalogCache)(nil)
)

// NewCatalogCache wraps the source reader with TTL caching.
func NewCatalogCache(deps CatalogCacheDeps) (*CatalogCache, error) {
	if deps.Source == nil {
		return nil, errors.New("catalog cache: source reader is required")
	}

	ttl := deps.TTL
	if ttl <= 0 {
		ttl = defaultCatalogCacheTTL
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &CatalogCache{
		source: deps.Source,
		ttl:    ttl,
		now: func() time.Time {
			return clock().UTC()
		},
		products:    make(map[productCacheKey]productCacheEntry),
		optionTypes: make(map[string]optionTypeCacheEntry),
	}, nil
}

// GetProduct serves the cached snapshot when fresh, loading through otherwise.
func (c *CatalogCache) GetProduct(ctx context.Context, productID string, includeInactive bool) (domain.Product, error) {
	key := productCacheKey{productID: productID, includeInactive: includeInactive}

	c.mu.RLock()
	entry, ok := c.products[key]
	c.mu.RUnlock()
	if ok && c.now().Before(entry.expiresAt) {
		return entry.product, nil
	}

	product, err := c.source.GetProduct(ctx, productID, includeInactive)
	if err != nil {
		return domain.Product{}, err
	}

	c.mu.Lock()
	c.products[key] = productCacheEntry{product: product, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()

	return product, nil
}

// GetOptionType serves the cached option type when fresh, loading through otherwise.
func (c *CatalogCache) GetOptionType(ctx context.Context, optionTypeID string) (domain.OptionType, error) {
	c.mu.RLock()
	entry, ok := c.optionTypes[optionTypeID]
	c.mu.RUnlock()
	if ok && c.now().Before(entry.expiresAt) {
		return entry.optionType, nil
	}

	optionType, err := c.source.GetOptionType(ctx, optionTypeID)
	if err != nil {
		return domain.OptionType{}, err
	}

	c.mu.Lock()
	c.optionTypes[optionTypeID] = optionTypeCacheEntry{optionType: optionType, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()

	return optionType, nil
}

// InvalidateProduct drops both the active-only and include-inactive entries.
func (c *CatalogCache) InvalidateProduct(productID string) {
	c.mu.Lock()
	delete(c.products, productCacheKey{productID: productID, includeInactive: false})
	delete(c.products, productCacheKey{productID: productID, includeInactive: true})
	c.mu.Unlock()
}

// InvalidateOptionType drops the cached option type.
func (c *CatalogCache) InvalidateOptionType(optionTypeID string) {
	c.mu.Lock()
	delete(c.optionTypes, optionTypeID)
	c.mu.Unlock()
}
