package di

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jmartinez0/quantity-breaks/internal/platform/config"
	"github.com/jmartinez0/quantity-breaks/internal/platform/observability"
	"github.com/jmartinez0/quantity-breaks/internal/platform/requestctx"
	"github.com/jmartinez0/quantity-breaks/internal/repositories"
	"github.com/jmartinez0/quantity-breaks/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Rules   services.RulesService
	Catalog services.CatalogService
}

// Container wires the platform gateway and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides the
// Admin API client as the registry, while tests can supply in-memory fakes.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, logger *zap.Logger) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	svc, err := buildServices(reg, logger)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources held by the platform gateway.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(reg repositories.Registry, logger *zap.Logger) (Services, error) {
	var svc Services

	rulesSvc, err := services.NewRulesService(services.RulesServiceDeps{
		Discounts: reg.Discounts(),
		Metadata:  reg.MetadataStore(),
		Shop:      reg.Shop(),
		Logger:    engineLogger(logger.Named("rules")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build rules service: %w", err)
	}
	svc.Rules = rulesSvc

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products: reg.Products(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	return svc, nil
}

// engineLogger adapts zap to the event-style logging the rules engine expects,
// preferring the request-scoped logger so engine events keep trace correlation.
func engineLogger(base *zap.Logger) func(context.Context, string, map[string]any) {
	if base == nil {
		base = zap.NewNop()
	}
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := observability.FromContext(ctx)
		if logger == requestctx.NoopLogger() {
			logger = base
		}
		zFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zFields = append(zFields, zap.Any(key, value))
		}
		logger.Info(event, zFields...)
	}
}
