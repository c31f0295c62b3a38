// Package app is the composition root. It owns the single transport client
// and the shared local bus, so nothing else needs a global instance.
package app

import (
	"log/slog"

	"github.com/nfrund/lernsino/internal/config"
	"github.com/nfrund/lernsino/internal/hub"
	"github.com/nfrund/lernsino/internal/multiplayer"
	"github.com/samber/do/v2"
)

// App wires the application's services. Services are built lazily on first use.
type App struct {
	injector *do.RootScope
}

// New registers every service provider.
func New(cfg *config.Config, logger *slog.Logger) *App {
	injector := do.New()
	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, logger)
	do.Provide(injector, provideTracing)
	do.Provide(injector, provideLocalBus)
	do.Provide(injector, provideClient)
	do.Provide(injector, provideHub)
	return &App{injector: injector}
}

// Client returns the application's transport client, starting it on first use.
func (a *App) Client() (*multiplayer.Client, error) {
	return do.Invoke[*multiplayer.Client](a.injector)
}

// Hub returns the reference hub server.
func (a *App) Hub() (*hub.Server, error) {
	h, err := do.Invoke[*hubServer](a.injector)
	if err != nil {
		return nil, err
	}
	return h.Server, nil
}

// Shutdown stops every service that was started, dependents first.
func (a *App) Shutdown() {
	// Each service logs its own shutdown failures.
	a.injector.Shutdown()
}
