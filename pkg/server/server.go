package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/domcore/pkg/dom"
	"github.com/vango-dev/domcore/pkg/metrics"
	"github.com/vango-dev/domcore/pkg/middleware"
	"github.com/vango-dev/domcore/pkg/render"
	"github.com/vango-dev/domcore/pkg/snapshot"
)

// ManagerFactory creates, starts and registers a new manager.
type ManagerFactory func() (*dom.Manager, error)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records HTTP request metrics into mtr.
func WithMetrics(mtr *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = mtr
	}
}

// WithTracerProvider sets the provider for request spans.
// Default: the global OpenTelemetry provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) {
		s.tracerProvider = tp
	}
}

// WithGatherer sets the source served on /metrics.
// Default: prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// WithExporter enables POST /managers/{id}/snapshot.
func WithExporter(exp *snapshot.Exporter) Option {
	return func(s *Server) {
		s.exporter = exp
	}
}

// WithManagerFactory enables POST /managers.
func WithManagerFactory(f ManagerFactory) Option {
	return func(s *Server) {
		s.factory = f
	}
}

// Server serves the managers of a directory over HTTP and websockets.
type Server struct {
	config    *Config
	directory *dom.Directory
	logger    *slog.Logger
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer
	exporter  *snapshot.Exporter
	factory   ManagerFactory

	tracerProvider trace.TracerProvider

	router   chi.Router
	upgrader websocket.Upgrader
	html     *render.Renderer

	mu         sync.Mutex
	bridges    map[*render.Bridge]struct{}
	httpServer *http.Server
}

// New creates a Server for the managers registered in dir. A nil config
// uses DefaultConfig.
func New(dir *dom.Directory, config *Config, opts ...Option) *Server {
	s := &Server{
		config:    config.withDefaults(),
		directory: dir,
		logger:    slog.Default(),
		gatherer:  prometheus.DefaultGatherer,
		bridges:   make(map[*render.Bridge]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  s.config.ReadBufferSize,
		WriteBufferSize: s.config.WriteBufferSize,
		CheckOrigin:     s.config.CheckOrigin,
	}
	s.html = render.NewRenderer(render.RendererConfig{Pretty: true})
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.OpenTelemetry(
		middleware.WithTracerProvider(s.tracerProvider),
		middleware.WithRequestFilter(func(r *http.Request) bool {
			return r.URL.Path != "/healthz" && r.URL.Path != "/metrics"
		}),
	))
	r.Use(middleware.Metrics(s.metrics))
	if len(s.config.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.config.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/managers", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/", s.handleCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Delete("/", s.handleClose)
			r.Get("/snapshot", s.handleSnapshot)
			r.Get("/html", s.handleHTML)
			r.Post("/snapshot", s.handleExport)
			r.Post("/size", s.handleSize)
			r.Get("/render", s.handleRender)
		})
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves on the configured address until ctx is canceled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	s.httpServer = &http.Server{
		Addr:              s.config.Address,
		Handler:           s,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", s.config.Address)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown closes every render bridge and gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.mu.Lock()
	bridges := make([]*render.Bridge, 0, len(s.bridges))
	for b := range s.bridges {
		bridges = append(bridges, b)
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	for _, b := range bridges {
		b.Close()
	}

	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}
	s.logger.Info("server shutdown complete", "bridges_closed", len(bridges))
	return nil
}

// Bridges returns the number of connected render bridges.
func (s *Server) Bridges() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bridges)
}

func (s *Server) track(b *render.Bridge) {
	s.mu.Lock()
	s.bridges[b] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(b *render.Bridge) {
	s.mu.Lock()
	delete(s.bridges, b)
	s.mu.Unlock()
}
