package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"signaldeck/internal/classifier"
	"signaldeck/internal/feedback"
	"signaldeck/internal/scanner"
	"signaldeck/internal/store"
)

// Scanner is the part of the orchestrator the API drives
type Scanner interface {
	Start(ctx context.Context, progress scanner.ProgressFunc) error
	Status() scanner.Status
	Breadth() classifier.Breadth
}

// MoodSource answers the market mood
type MoodSource interface {
	MarketMood(ctx context.Context, b classifier.Breadth) classifier.Mood
}

// HealthChecker reports broker reachability
type HealthChecker interface {
	Health(ctx context.Context) bool
}

// Deps are the collaborators of a Server. Mood, Broker and Gatherer are optional.
type Deps struct {
	Scanner  Scanner
	Signals  *store.SignalRepository
	Feedback *feedback.Log
	Mood     MoodSource
	Broker   HealthChecker
	Gatherer prometheus.Gatherer
}

// Server represents the web server
type Server struct {
	deps Deps
	log  zerolog.Logger
	now  func() time.Time

	// scans outlive the request that started them
	baseCtx    context.Context
	cancelScan context.CancelFunc
	srv        *http.Server
}

// NewServer creates a new web server
func NewServer(deps Deps, log zerolog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		deps:       deps,
		log:        log.With().Str("component", "web").Logger(),
		now:        time.Now,
		baseCtx:    ctx,
		cancelScan: cancel,
	}
}

// Handler builds the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(corsMiddleware)

	r.Get("/api/health", s.handleHealth)

	r.Post("/api/scan", s.handleScan)
	r.Get("/api/scan/status", s.handleScanStatus)

	r.Get("/api/signals", s.handleSignals)
	r.Delete("/api/signals", s.handleClear)
	r.Post("/api/signals/{id}/taken", s.handleTaken)
	r.Post("/api/signals/{id}/feedback", s.handleFeedback)

	r.Get("/api/market", s.handleMarket)

	if s.deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Start serves on addr until Shutdown
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Info().Str("addr", addr).Msg("signaldeck API listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server and cancels a running scan
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelScan()
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers for the dashboard
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}
