package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nfrund/lernsino/internal/config"
	"github.com/nfrund/lernsino/internal/hub"
	"github.com/nfrund/lernsino/internal/multiplayer"
	"github.com/nfrund/lernsino/internal/pubsub"
	"github.com/samber/do/v2"
	"go.opentelemetry.io/otel/trace"
)

// tracing owns the bus tracer and its exporter cleanup. tracer is nil when disabled.
type tracing struct {
	tracer  trace.Tracer
	cleanup func()
}

func (t *tracing) Shutdown() {
	t.cleanup()
}

// localBus is the device-wide bus backing every client's local channel.
type localBus struct {
	*pubsub.DeviceBus
}

func (b *localBus) Shutdown() error {
	return b.Close()
}

// hubServer adapts hub.Server to the container's shutdown hook.
type hubServer struct {
	*hub.Server
}

func (h *hubServer) Shutdown() error {
	return h.Close()
}

func provideTracing(i do.Injector) (*tracing, error) {
	cfg := pubsub.LoadTracingConfigFromEnv()
	if !cfg.Enabled {
		// A nil tracer keeps the bus free of tracing middleware.
		return &tracing{cleanup: func() {}}, nil
	}
	tracer, cleanup, err := pubsub.SetupOTel(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	return &tracing{tracer: tracer, cleanup: cleanup}, nil
}

func provideLocalBus(i do.Injector) (*localBus, error) {
	cfg := do.MustInvoke[*config.Config](i)
	logger := do.MustInvoke[*slog.Logger](i)
	t, err := do.Invoke[*tracing](i)
	if err != nil {
		return nil, err
	}
	bus, err := pubsub.NewDeviceBus(cfg.FallbackDir, logger, t.tracer)
	if err != nil {
		return nil, err
	}
	return &localBus{bus}, nil
}

func provideClient(i do.Injector) (*multiplayer.Client, error) {
	cfg := do.MustInvoke[*config.Config](i)
	logger := do.MustInvoke[*slog.Logger](i)
	bus, err := do.Invoke[*localBus](i)
	if err != nil {
		return nil, err
	}

	return multiplayer.New(clientConfig(cfg),
		multiplayer.WithLogger(logger),
		multiplayer.WithLocalBus(bus),
	), nil
}

func provideHub(i do.Injector) (*hubServer, error) {
	logger := do.MustInvoke[*slog.Logger](i)
	return &hubServer{hub.NewServer(logger.With("component", "hub"))}, nil
}

func clientConfig(cfg *config.Config) multiplayer.Config {
	return multiplayer.Config{
		URL:                  cfg.HubURL,
		ReconnectInterval:    cfg.ReconnectInterval,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		DialTimeout:          cfg.DialTimeout,
		FallbackChannel:      cfg.FallbackChannel,
	}
}
