package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/olta-dev/olta/pkg/lobby"
	"github.com/olta-dev/olta/pkg/metrics"
	"github.com/olta-dev/olta/pkg/middleware"
	"github.com/olta-dev/olta/pkg/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the subset of *registry.Registry the gateway drives.
type Registry interface {
	Join(ctx context.Context, sessionID string, sink registry.Sink) error
	RemoveSubscriber(sessionID, subscriberID string) bool
	CreateDocument(ctx context.Context, sessionID, collection string, doc lobby.Document) (string, error)
	UpdateDocument(ctx context.Context, sessionID, collection, docID string, changes lobby.DocumentChanges) (lobby.DocumentChanges, error)
	DeleteDocument(ctx context.Context, sessionID, collection, docID string) (bool, error)
}

// Server accepts websocket connections and binds each to a process.
type Server struct {
	registry   Registry
	config     *ServerConfig
	connConfig *ConnConfig
	upgrader   websocket.Upgrader
	router     chi.Router
	logger     *slog.Logger
	metrics    *metrics.Metrics

	httpMu     sync.Mutex
	httpServer *http.Server

	mu      sync.Mutex
	conns   map[*Conn]struct{}
	wg      sync.WaitGroup
	closing atomic.Bool
}

// New creates a gateway in front of reg. A nil config uses
// DefaultServerConfig().
func New(reg Registry, config *ServerConfig) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	config = config.Clone()
	defaults := DefaultServerConfig()
	if config.Address == "" {
		config.Address = defaults.Address
	}
	if config.ReadBufferSize <= 0 {
		config.ReadBufferSize = defaults.ReadBufferSize
	}
	if config.WriteBufferSize <= 0 {
		config.WriteBufferSize = defaults.WriteBufferSize
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = defaults.ReadHeaderTimeout
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if config.CheckOrigin == nil {
		if len(config.AllowedOrigins) > 0 {
			config.CheckOrigin = AllowOrigins(config.AllowedOrigins...)
		} else {
			config.CheckOrigin = SameOriginCheck
		}
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		registry:   reg,
		config:     config,
		connConfig: config.Conn.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		logger:  logger.With("component", "server"),
		metrics: config.Metrics,
		conns:   make(map[*Conn]struct{}),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(s.config.Logger))
	r.Use(middleware.Tracing(middleware.WithFilter(func(r *http.Request) bool {
		return r.URL.Path != "/healthz" && r.URL.Path != s.config.MetricsPath
	})))

	r.Get("/healthz", s.handleHealth)
	if s.config.MetricsPath != "" {
		r.Method(http.MethodGet, s.config.MetricsPath, promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/ws/{processID}", s.handleWebSocket)
	return r
}

// Handler returns the gateway's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.closing.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	processID := chi.URLParam(r, "processID")
	if processID == "" {
		s.metrics.HandshakeRejected("missing_process")
		http.Error(w, "missing process id", http.StatusBadRequest)
		return
	}
	if s.closing.Load() {
		s.metrics.HandshakeRejected("shutting_down")
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	if !s.validToken(r.URL.Query().Get("token")) {
		s.metrics.HandshakeRejected("invalid_token")
		s.logger.Warn("handshake rejected",
			"process_id", processID,
			"remote_addr", r.RemoteAddr,
			"error", ErrInvalidToken)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.metrics.HandshakeRejected("upgrade")
		s.logger.Warn("websocket upgrade failed",
			"process_id", processID,
			"remote_addr", r.RemoteAddr,
			"error", err)
		return
	}

	c := newConn(ws, processID, s)
	if !s.track(c) {
		c.Close()
		_ = ws.Close()
		return
	}
	defer s.untrack(c)

	c.serve(r.Context())
}

func (s *Server) validToken(got string) bool {
	if s.config.Token == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.config.Token)) == 1
}

func (s *Server) track(c *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.wg.Done()
}

// ConnCount returns the number of open websocket connections.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Run listens on the configured address and serves until ctx is done, then
// shuts down gracefully within ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
	}
	s.httpMu.Lock()
	s.httpServer = srv
	s.httpMu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown stops accepting connections, closes every open websocket and
// waits for their goroutines, or until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")

	s.mu.Lock()
	s.closing.Store(true)
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var httpErr error
	s.httpMu.Lock()
	srv := s.httpServer
	s.httpMu.Unlock()
	if srv != nil {
		httpErr = srv.Shutdown(ctx)
	}

	// Hijacked connections are not tracked by http.Server.
	for _, c := range conns {
		c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		for _, c := range conns {
			c.abort()
		}
		return ctx.Err()
	}

	if httpErr != nil && !errors.Is(httpErr, http.ErrServerClosed) {
		return httpErr
	}
	s.logger.Info("server stopped")
	return nil
}

var _ Registry = (*registry.Registry)(nil)
