// Package web serves the read-only dashboard API: the latest cycle report,
// per-source health, the historical analysis snapshot, and Prometheus
// metrics.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/Siberianok/arbitrage-telebot-sub000/internal/history"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/metrics"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/scanner"
)

// Server is the dashboard HTTP server. Read-only; all mutation happens in
// the scan loop.
type Server struct {
	router   *mux.Router
	server   *http.Server
	reports  *scanner.ReportStore
	store    *metrics.Store
	analyzer *history.Analyzer
}

// NewServer wires the routes over the scanner's stores.
func NewServer(addr string, reports *scanner.ReportStore, store *metrics.Store, analyzer *history.Analyzer) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		reports:  reports,
		store:    store,
		analyzer: analyzer,
	}
	s.routes()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/opportunities", s.handleOpportunities).Methods("GET")
	api.HandleFunc("/sources", s.handleSources).Methods("GET")
	api.HandleFunc("/analysis", s.handleAnalysis).Methods("GET")
	api.HandleFunc("/discards", s.handleDiscards).Methods("GET")
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("dashboard listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleOpportunities(w http.ResponseWriter, _ *http.Request) {
	report := s.reports.Last()
	if report == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"opportunities": []interface{}{},
			"triangular":    []interface{}{},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"started_at":    report.StartedAt,
		"duration_ms":   report.Duration.Milliseconds(),
		"opportunities": report.Opportunities,
		"triangular":    report.Triangular,
		"denied":        report.Denied,
	})
}

func (s *Server) handleSources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

func (s *Server) handleAnalysis(w http.ResponseWriter, _ *http.Request) {
	snap := s.analyzer.Snapshot()
	if snap == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no analysis yet"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDiscards(w http.ResponseWriter, _ *http.Request) {
	report := s.reports.Last()
	if report == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"discards":        report.Discards,
		"quality_rejects": report.QualityRejects,
		"drops":           report.Drops,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}
