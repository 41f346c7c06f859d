// Package server exposes the bot's operational HTTP surface: health,
// status, and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// BotState is the slice of router state the status endpoint reports.
type BotState interface {
	Persona() string
	Language() string
	ActiveKnowledge() []string
	IntentEnabled() bool
}

// MemoryStats reports vector store record counts.
type MemoryStats interface {
	Enabled() bool
	Count(collection string) int
}

// BackendHealth probes the model backend. The message explains the status
// either way.
type BackendHealth interface {
	HealthCheck(ctx context.Context) (bool, string)
	Model() string
}

// Server is the operational HTTP server.
type Server struct {
	state      BotState
	mem        MemoryStats
	backend    BackendHealth
	httpServer *http.Server
	startTime  time.Time
	log        zerolog.Logger
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status    string `json:"status"`
	Backend   string `json:"backend"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

// StatusResponse is the /api/v1/status body.
type StatusResponse struct {
	Status          string         `json:"status"`
	Model           string         `json:"model"`
	Persona         string         `json:"persona"`
	Language        string         `json:"language"`
	ActiveKnowledge []string       `json:"active_knowledge"`
	IntentDetection bool           `json:"intent_detection"`
	Memory          map[string]any `json:"memory"`
	Uptime          string         `json:"uptime"`
	Timestamp       string         `json:"timestamp"`
}

// New builds the server listening on addr.
func New(addr string, state BotState, mem MemoryStats, backend BackendHealth, log zerolog.Logger) *Server {
	s := &Server{
		state:     state,
		mem:       mem,
		backend:   backend,
		startTime: time.Now(),
		log:       log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.healthHandler)
	mux.HandleFunc("/api/v1/status", s.statusHandler)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("http server starting")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	ok, msg := s.backend.HealthCheck(ctx)

	code := http.StatusOK
	resp := HealthResponse{
		Status:    "healthy",
		Backend:   msg,
		Uptime:    time.Since(s.startTime).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if !ok {
		code = http.StatusServiceUnavailable
		resp.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	memStats := map[string]any{"enabled": s.mem.Enabled()}
	if s.mem.Enabled() {
		memStats["conversations"] = s.mem.Count("conversations")
		memStats["knowledge"] = s.mem.Count("knowledge")
	}

	resp := StatusResponse{
		Status:          "running",
		Model:           s.backend.Model(),
		Persona:         s.state.Persona(),
		Language:        s.state.Language(),
		ActiveKnowledge: s.state.ActiveKnowledge(),
		IntentDetection: s.state.IntentEnabled(),
		Memory:          memStats,
		Uptime:          time.Since(s.startTime).String(),
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}
