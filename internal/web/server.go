package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/vitos/crypto_market_maker/internal/domain"
	"github.com/vitos/crypto_market_maker/internal/infrastructure/metrics"
	"go.uber.org/zap"
)

// ReportSource exposes the most recent in-memory run reports.
type ReportSource interface {
	LatestReport(symbol string) (*domain.RunReport, bool)
	LatestReports() []*domain.RunReport
}

type Server struct {
	router  chi.Router
	server  *http.Server
	reports ReportSource
	runRepo domain.RunRepository
	logger  *zap.Logger
	started time.Time
}

func NewServer(port int, reports ReportSource, runRepo domain.RunRepository, logger *zap.Logger) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		reports: reports,
		runRepo: runRepo,
		logger:  logger,
		started: time.Now(),
	}
	s.routes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))
	s.router.Use(metrics.Middleware(routePattern))

	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", metrics.Handler())

	// Status
	s.router.Get("/status", s.handleStatus)
	s.router.Get("/status/{symbol}", s.handleSymbolStatus)
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	reports := s.reports.LatestReports()
	sort.Slice(reports, func(i, j int) bool { return reports[i].Symbol < reports[j].Symbol })
	s.writeJSON(w, http.StatusOK, reports)
}

type symbolStatus struct {
	Latest *domain.RunReport   `json:"latest,omitempty"`
	Runs   []*domain.RunReport `json:"runs"`
}

func (s *Server) handleSymbolStatus(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	var resp symbolStatus
	if latest, ok := s.reports.LatestReport(symbol); ok {
		resp.Latest = latest
	}

	if s.runRepo != nil {
		runs, err := s.runRepo.ListRuns(r.Context(), symbol, limit)
		if err != nil {
			s.logger.Error("Failed to list runs", zap.String("symbol", symbol), zap.Error(err))
			http.Error(w, "failed to list runs", http.StatusInternalServerError)
			return
		}
		resp.Runs = runs
	}

	if resp.Latest == nil && len(resp.Runs) == 0 {
		http.Error(w, "unknown symbol", http.StatusNotFound)
		return
	}
	if resp.Runs == nil {
		resp.Runs = []*domain.RunReport{}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
