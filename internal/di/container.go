package di

import (
	"context"
	"errors"

	"github.com/teahouse/api/internal/platform/config"
	"github.com/teahouse/api/internal/repositories"
	"github.com/teahouse/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Catalog  services.CatalogService
	Orders   services.OrderService
	Counters services.CounterService
	System   services.SystemService
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// ContainerOption customises container construction.
type ContainerOption func(*containerOptions)

type containerOptions struct {
	events services.OrderEventPublisher
	build  services.BuildInfo
}

// WithOrderEventPublisher wires a publisher for order lifecycle events.
func WithOrderEventPublisher(publisher services.OrderEventPublisher) ContainerOption {
	return func(o *containerOptions) {
		o.events = publisher
	}
}

// WithBuildInfo attaches build metadata surfaced by the system service.
func WithBuildInfo(build services.BuildInfo) ContainerOption {
	return func(o *containerOptions) {
		o.build = build
	}
}

// NewContainer constructs the runtime dependencies. Tests can supply stub
// registries; production wiring hands in the Firestore-backed one.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...ContainerOption) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	var options containerOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	svc, err := buildServices(reg, cfg, options)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases repository clients held by the container.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(reg repositories.Registry, cfg config.Config, options containerOptions) (Services, error) {
	var svc Services

	catalogRepo := reg.Catalog()
	if catalogRepo == nil {
		return svc, errors.New("catalog repository is required")
	}

	var reader services.CatalogReader = catalogRepo
	var invalidator services.CatalogInvalidator
	if cfg.Features.EnableCatalogCache {
		cache, err := services.NewCatalogCache(services.CatalogCacheDeps{
			Source: catalogRepo,
			TTL:    cfg.Catalog.CacheTTL,
		})
		if err != nil {
			return svc, err
		}
		reader = cache
		invalidator = cache
	}

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Catalog:     catalogRepo,
		Invalidator: invalidator,
	})
	if err != nil {
		return svc, err
	}
	svc.Catalog = catalogSvc

	counterSvc, err := services.NewCounterService(services.CounterServiceDeps{
		Repository:        reg.Counters(),
		OrderNumberPrefix: cfg.Orders.NumberPrefix,
	})
	if err != nil {
		return svc, err
	}
	svc.Counters = counterSvc

	pricing, err := services.NewOrderPricingEngine(services.OrderPricingEngineDeps{
		Catalog:  reader,
		Currency: cfg.Orders.Currency,
	})
	if err != nil {
		return svc, err
	}

	var events services.OrderEventPublisher
	if cfg.Features.EnableOrderEvents {
		events = options.events
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Numbers:    counterSvc,
		Pricing:    pricing,
		UnitOfWork: reg,
		Events:     events,
		Currency:   cfg.Orders.Currency,
	})
	if err != nil {
		return svc, err
	}
	svc.Orders = orderSvc

	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: reg.Health(),
		Build:            options.build,
		Counters:         counterSvc,
	})
	if err != nil {
		return svc, err
	}
	svc.System = systemSvc

	return svc, nil
}
