// Package httpapi exposes the cookie scanner and the markup gate over HTTP.
//
// Routes:
//
//	GET  /healthz            liveness
//	GET  /v1/catalog         the service catalog
//	GET  /v1/scan            audit the request's own cookies
//	GET  /v1/scan/quick      compliance flag and issue count only
//	POST /v1/gate            gate the scripts of an HTML page
//	GET  /v1/history         archived scans, newest first
//	GET  /v1/history/{id}    one archived scan
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/haukened/cookiegate/internal/consent/common/clock"
	"github.com/haukened/cookiegate/internal/consent/common/log"
	"github.com/haukened/cookiegate/internal/consent/domain"
	"github.com/haukened/cookiegate/internal/consent/repos/archive"
	"github.com/haukened/cookiegate/internal/consent/services/scanner"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 60 * time.Second

	// maxPageBytes bounds the HTML accepted by the gate endpoint.
	maxPageBytes = 5 << 20
)

// Catalog is the part of the service catalog the API needs.
type Catalog interface {
	ResolveByDomain(hostname string) (domain.DomainMatch, bool)
	ResolveByCookie(name string) (domain.CookieMatch, bool)
	Subset(ids []string) (found []domain.ServicePreset, missing []string)
	Presets() []domain.ServicePreset
}

// Archive stores scan results. It is optional.
type Archive interface {
	Put(r domain.ScanResult) (string, error)
	Get(id string) (domain.ScanResult, bool, error)
	List(limit int) ([]archive.Record, error)
}

// Options configures a Server.
type Options struct {
	Catalog Catalog
	Archive Archive
	// Declared is used when a scan request names no services.
	Declared []string
	// Consent is used when a gate request names no categories.
	Consent domain.ConsentState
	Scan    scanner.Options
	Locale  string
	Clock   clock.Clock
	Logger  log.Logger
}

// Server is the HTTP front end.
type Server struct {
	addr   string
	opts   Options
	router *mux.Router
	logger log.Logger

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	done     chan struct{}
}

// New builds a Server that will listen on addr.
func New(addr string, opts Options) (*Server, error) {
	if opts.Catalog == nil {
		return nil, errors.New("httpapi: catalog is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	if opts.Locale == "" {
		opts.Locale = "en"
	}
	if opts.Consent == nil {
		opts.Consent = domain.ConsentState{domain.CategoryNecessary: true}
	}
	s := &Server{
		addr:   addr,
		opts:   opts,
		router: mux.NewRouter(),
		logger: log.Component(opts.Logger, "httpapi"),
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/catalog", s.handleCatalog).Methods(http.MethodGet)
	v1.HandleFunc("/scan", s.handleScan).Methods(http.MethodGet)
	v1.HandleFunc("/scan/quick", s.handleQuickScan).Methods(http.MethodGet)
	v1.HandleFunc("/gate", s.handleGate).Methods(http.MethodPost)
	v1.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	v1.HandleFunc("/history/{id}", s.handleHistoryItem).Methods(http.MethodGet)
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start binds the listener and serves in the background until ctx is
// cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		return fmt.Errorf("http server already running")
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.srv = &http.Server{
		Handler:      s.router,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}
	s.done = make(chan struct{})

	srv, done := s.srv, s.done
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(map[string]any{"error": err.Error()}, "http_serve_failed")
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop(context.Background())
		case <-done:
		}
	}()

	s.logger.Info(map[string]any{"address": ln.Addr().String()}, "http_server_started")
	return nil
}

// Stop shuts the server down, waiting for in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.srv = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	<-done
	s.logger.Info(map[string]any{"address": s.Address()}, "http_server_stopped")
	return err
}

// Address returns the bound address once started, the configured one before.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

type statusWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.opts.Clock.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Debug(map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      sw.status,
			"bytes":       sw.size,
			"duration_ms": s.opts.Clock.Now().Sub(start).Milliseconds(),
		}, "http_request")
	})
}
