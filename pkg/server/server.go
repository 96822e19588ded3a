package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/balco-dev/balco/pkg/middleware"
	"github.com/balco-dev/balco/pkg/roomstore"
	"github.com/balco-dev/balco/pkg/router"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server accepts WebSocket connections and feeds them to a router.
type Server struct {
	config   *ServerConfig
	router   *router.Router
	store    *roomstore.Store
	logger   *slog.Logger
	upgrader websocket.Upgrader
	metrics  *middleware.Metrics
	gatherer prometheus.Gatherer
	handler  http.Handler

	mu       sync.Mutex
	conns    map[string]*Conn
	httpSrv  *http.Server
	closed   bool
	wg       sync.WaitGroup
	shutOnce sync.Once
	shutErr  error
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics counts transport errors on m and serves g on /metrics.
func WithMetrics(m *middleware.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		if g != nil {
			s.gatherer = g
		}
	}
}

// New creates a server for r. A nil config uses DefaultServerConfig().
func New(r *router.Router, config *ServerConfig, opts ...Option) *Server {
	config = config.withDefaults()
	s := &Server{
		config:   config,
		router:   r,
		store:    r.Store(),
		logger:   slog.Default(),
		gatherer: prometheus.DefaultGatherer,
		conns:    make(map[string]*Conn),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  config.ReadBufferSize,
		WriteBufferSize: config.WriteBufferSize,
		CheckOrigin:     originChecker(config.AllowedOrigin),
	}
	s.handler = s.routes()
	return s
}

// Config returns the effective configuration.
func (s *Server) Config() *ServerConfig { return s.config }

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.RealIP)
	mux.Use(chimw.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{s.config.AllowedOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	mux.Get("/ws", s.serveWS)
	mux.Get("/healthz", s.serveHealth)
	mux.Get("/api/rooms/{roomID}", s.serveRoom)
	mux.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// originChecker accepts requests without an Origin header, which browsers
// always send, so native clients can connect.
func originChecker(allowed string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if allowed == "*" {
			return true
		}
		origin := r.Header.Get("Origin")
		return origin == "" || origin == allowed
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		s.recordError("upgrade")
		return
	}

	c := newConn(ws, s.config.SessionConfig, s.logger)
	c.onError = s.recordError
	if !s.track(c) {
		c.Close(ErrServerShutdown)
		return
	}
	s.router.Registry().Register(c)
	s.logger.Info("session connected", "session_id", c.ID(), "remote_addr", r.RemoteAddr)

	// The request context is cancelled once the handler returns, so the
	// loops run on a detached one.
	ctx := context.WithoutCancel(r.Context())
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		c.WriteLoop()
	}()
	go func() {
		defer s.wg.Done()
		defer s.untrack(c)
		c.ReadLoop(ctx, s.router)
		s.logger.Info("session disconnected", "session_id", c.ID(), "reason", c.Err())
	}()
}

func (s *Server) track(c *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c.ID()] = c
	return true
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c.ID())
}

// ConnCount returns the number of open WebSocket connections.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

type healthResponse struct {
	Status   string `json:"status"`
	Rooms    int    `json:"rooms"`
	Sessions int    `json:"sessions"`
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Rooms:    s.store.Len(),
		Sessions: s.router.Registry().Count(),
	})
}

func (s *Server) serveRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	snap, ok := s.store.Get(roomID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "room not found"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) recordError(errorType string) {
	if s.metrics != nil {
		s.metrics.RecordWebSocketError(errorType)
	}
}

// Run starts the router and serves on the configured address until ctx is
// done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.httpSrv = &http.Server{Handler: s.handler}
	httpServer := s.httpSrv
	s.mu.Unlock()

	routerErr := make(chan error, 1)
	go func() { routerErr <- s.router.Run(ctx) }()

	serveErr := make(chan error, 1)
	go func() { serveErr <- httpServer.Serve(ln) }()
	s.logger.Info("listening", "address", ln.Addr().String(), "allowed_origin", s.config.AllowedOrigin)

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", "error", err)
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
			defer cancel()
			_ = s.Shutdown(shutdownCtx)
			return err
		}
	case err := <-routerErr:
		if err != nil {
			s.logger.Error("router failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops accepting connections, closes the open ones, stops the
// router and flushes the store. It is safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutOnce.Do(func() {
		s.shutErr = s.shutdown(ctx)
	})
	return s.shutErr
}

func (s *Server) shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")

	s.mu.Lock()
	s.closed = true
	httpServer := s.httpSrv
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var errs []error
	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	s.router.Stop()
	for _, c := range conns {
		c.Close(ErrServerShutdown)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	if err := s.store.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	s.logger.Info("shutdown complete", "sessions_closed", len(conns))
	return errors.Join(errs...)
}
