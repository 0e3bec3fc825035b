package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-decisions/pkg/config"
	"github.com/ekaya-inc/ekaya-decisions/pkg/llm"
)

const healthPingTimeout = 2 * time.Second

// Pinger is satisfied by *database.DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
}

// HealthResponse reports the state of the service's dependencies.
type HealthResponse struct {
	Status   string     `json:"status"`
	Database string     `json:"database,omitempty"`
	LLM      *LLMStatus `json:"llm,omitempty"`
}

// LLMStatus describes the configured explainer provider.
type LLMStatus struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Circuit  string `json:"circuit,omitempty"`
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg    *config.Config
	db     Pinger
	client llm.LLMClient
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db and client may be nil.
func NewHealthHandler(cfg *config.Config, db Pinger, client llm.LLMClient, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, db: db, client: client, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health requests.
// Replies 503 when the database does not answer a ping.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{Status: "ok"}
	status := http.StatusOK

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.logger.Warn("Database health check failed", zap.Error(err))
			response.Status = "degraded"
			response.Database = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			response.Database = "ok"
		}
	}

	if h.client != nil {
		llmStatus := &LLMStatus{Provider: h.client.GetProvider(), Model: h.client.GetModel()}
		if guarded, ok := h.client.(*llm.GuardedClient); ok {
			llmStatus.Circuit = guarded.Breaker().State().String()
		}
		response.LLM = llmStatus
	}

	if err := WriteJSON(w, status, response); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "ekaya-decisions",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
