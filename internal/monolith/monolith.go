// Package monolith provides the application container and module interface.
package monolith

import (
	"context"

	"github.com/deltaneutral/perp-arb-engine/internal/config"
	"github.com/deltaneutral/perp-arb-engine/internal/di"
	"github.com/deltaneutral/perp-arb-engine/internal/logger"
)

// Monolith is the main application container providing access to shared infrastructure.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	Services() di.ServiceRegistry
}

// Module represents a bounded context module that can register services and start up.
type Module interface {
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

// app implements the Monolith interface.
type app struct {
	config    *config.Config
	logger    logger.LoggerInterface
	container di.Container
}

// New creates a new Monolith instance.
func New(cfg *config.Config, log logger.LoggerInterface) (*app, error) {
	container := di.NewContainer()
	container.Register("config", cfg)
	container.Register("logger", log)

	return &app{
		config:    cfg,
		logger:    log,
		container: container,
	}, nil
}

func (a *app) Config() *config.Config {
	return a.config
}

func (a *app) Logger() logger.LoggerInterface {
	return a.logger
}

func (a *app) Services() di.ServiceRegistry {
	return a.container
}

// Container returns the DI container for module registration.
func (a *app) Container() di.Container {
	return a.container
}

// RegisterModules registers all provided modules.
func (a *app) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return err
		}
	}
	return nil
}

// StartModules starts all provided modules.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// Close releases any resources the monolith owns. Venue adapters and the
// execution engine are shut down by the supervisor, not here.
func (a *app) Close() error {
	return nil
}
