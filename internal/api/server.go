// Package api provides the status HTTP server. It exposes process health
// and per-collection cycle counters; it is read-only and serves no part of
// the ingestion path.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"

	"github.com/collection-watcher/internal/logging"
	"github.com/collection-watcher/internal/scheduler"
)

// StatsProvider supplies the per-collection cycle counters
type StatsProvider interface {
	Stats() []scheduler.CycleStats
}

// Pinger reports whether the durable store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the status HTTP server
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	stats      StatsProvider
	redis      Pinger
	logger     *logging.Logger
	started    time.Time
}

// ServerConfig holds status server settings
type ServerConfig struct {
	Host string
	Port string
}

// NewServer creates the status server
func NewServer(cfg *ServerConfig, stats StatsProvider, redis Pinger, logger *logging.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		stats:   stats,
		redis:   redis,
		logger:  logger,
		started: time.Now(),
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/collections", s.handleCollections).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Router returns the underlying router (used by tests)
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins serving. Blocks until the server stops.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Status server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type healthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
	Redis  string `json:"redis"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status: "ok",
		Uptime: time.Since(s.started).Round(time.Second).String(),
		Redis:  "ok",
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.redis.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Redis = err.Error()
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleCollections(w http.ResponseWriter, r *http.Request) {
	stats := s.stats.Stats()
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Collection < stats[j].Collection
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"collections": stats,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
