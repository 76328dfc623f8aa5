// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package statusapi serves read-only HTTP views of a running link: health,
// counters, the last transmitted frame, recent received lines, a WebSocket
// event stream and Prometheus metrics. Nothing here can send a frame.
package statusapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eagletech/eaglelink/pkg/linebuf"
	"github.com/eagletech/eaglelink/pkg/link"
)

// Sentinel errors for the statusapi package.
var (
	ErrServerNotStarted     = errors.New("statusapi: server not started")
	ErrServerAlreadyStarted = errors.New("statusapi: server already started")
	ErrSourceNotConfigured  = errors.New("statusapi: source not configured")
)

// Defaults.
const (
	DefaultListenAddr        = "127.0.0.1:8470"
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultEventBuffer       = 64
	wsWriteTimeout           = 5 * time.Second
)

// Source is the view of the link the API exposes. *link.Handle
// satisfies it.
type Source interface {
	Status() link.Status
	LastFrame() []byte
	Lines() []linebuf.Entry
	Subscribe(buffer int) (<-chan link.Event, func())
	Registry() *prometheus.Registry
}

// Config configures the HTTP server.
type Config struct {
	ListenAddr        string
	ReadHeaderTimeout time.Duration

	// EventBuffer is the per-WebSocket event queue length.
	EventBuffer int

	Logger *slog.Logger
}

// Server is the status HTTP server.
type Server struct {
	cfg      Config
	src      Source
	logger   *slog.Logger
	router   chi.Router
	upgrader websocket.Upgrader

	mu       sync.Mutex
	httpSrv  *http.Server
	listener net.Listener
	quit     chan struct{}
	streams  sync.WaitGroup
}

// New builds the router. The listener is not opened until Start.
func New(src Source, cfg Config) (*Server, error) {
	if src == nil {
		return nil, ErrSourceNotConfigured
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		src:    src,
		logger: cfg.Logger.With("component", "statusapi"),
		quit:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/frame", s.handleFrame)
		r.Get("/lines", s.handleLines)
		r.Get("/events", s.handleEvents)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.src.Registry(), promhttp.HandlerOpts{}))
	return r
}

// Handler returns the router for embedding or testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start opens the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return ErrServerAlreadyStarted
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("statusapi: listen %s: %w", s.cfg.ListenAddr, err)
	}
	s.listener = ln
	s.httpSrv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server failed", "error", err)
		}
	}()

	s.logger.Info("status API listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// beginStream registers an event stream unless the server is stopping.
func (s *Server) beginStream() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.quit:
		return false
	default:
	}
	s.streams.Add(1)
	return true
}

// Stop ends open event streams and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	if srv == nil {
		s.mu.Unlock()
		return ErrServerNotStarted
	}
	select {
	case <-s.quit:
	default:
		close(s.quit)
	}
	s.mu.Unlock()

	// Hijacked WebSocket connections are not tracked by Shutdown.
	done := make(chan struct{})
	go func() {
		s.streams.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("statusapi: shutdown: %w", ctx.Err())
	}

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("statusapi: shutdown: %w", err)
	}
	return nil
}
