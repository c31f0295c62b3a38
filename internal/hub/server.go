package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/nfrund/lernsino/internal/middleware"
)

const shutdownTimeout = 10 * time.Second

// Server is a development hub speaking the realtime wire protocol over
// websockets at "/" and "/ws".
type Server struct {
	e        *echo.Echo
	hub      *Hub
	store    *StatsStore
	upgrader websocket.Upgrader
	logger   *slog.Logger

	cancel    context.CancelFunc
	mu        sync.Mutex
	closed    bool
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type serverOptions struct {
	handshakesPerSecond float64
}

// ServerOption configures a Server.
type ServerOption func(*serverOptions)

// WithHandshakeRate limits websocket handshakes per client IP. Zero disables the limit.
func WithHandshakeRate(perSecond float64) ServerOption {
	return func(o *serverOptions) {
		o.handshakesPerSecond = perSecond
	}
}

// NewServer creates the hub and starts its run loop.
func NewServer(logger *slog.Logger, opts ...ServerOption) *Server {
	o := serverOptions{handshakesPerSecond: middleware.DefaultHandshakesPerSecond}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		e:     echo.New(),
		hub:   NewHub(logger),
		store: NewStatsStore(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Development hub: any origin may connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
		cancel: cancel,
	}

	s.e.HideBanner = true
	s.e.HidePort = true
	s.e.Use(echomw.Recover())
	s.e.Use(echomw.RequestID())
	s.e.Use(middleware.Logger(logger))

	limiter := middleware.RateLimiter(o.handshakesPerSecond)
	s.e.GET("/", s.serveWS, limiter)
	s.e.GET("/ws", s.serveWS, limiter)
	s.e.GET("/healthz", s.health)

	go s.hub.Run(ctx)
	return s
}

// Handler returns the HTTP handler, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Hub returns the peer registry.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Store returns the stats store.
func (s *Server) Store() *StatsStore {
	return s.store
}

// Start listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Hub listening", "addr", addr)
		errCh <- s.e.Start(addr)
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("hub server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.e.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Hub shutdown failed", "error", err)
	}
	return s.Close()
}

// Close stops the hub, hangs up on every peer and waits for their pumps to exit.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.logger.Info("Closing hub", "peers", s.hub.Len())
		s.cancel()
		<-s.hub.done
		err = s.e.Close()

		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.wg.Wait()
	})
	return err
}

func (s *Server) serveWS(c echo.Context) error {
	logger := middleware.FromContext(c.Request().Context())

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the error response.
		logger.Warn("Websocket upgrade failed", "error", err)
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return nil
	}
	s.wg.Add(2)
	s.mu.Unlock()

	p := newPeer(conn, s.hub, s.store, logger)
	if !s.hub.Register(p) {
		s.wg.Add(-2)
		conn.Close()
		return nil
	}

	go func() {
		defer s.wg.Done()
		p.writePump()
	}()
	go func() {
		defer s.wg.Done()
		p.readPump()
	}()
	return nil
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"peers":  s.hub.Len(),
		"users":  s.store.Len(),
	})
}
