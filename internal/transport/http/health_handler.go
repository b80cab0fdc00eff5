package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"tokengate/internal/services"
)

// HealthHandler serves the service root summary and health probes.
type HealthHandler struct {
	service services.TokenService
	logger  *slog.Logger
	version string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(service services.TokenService, logger *slog.Logger, version string) *HealthHandler {
	return &HealthHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "health")),
		version: version,
	}
}

// rootResponse is the operator-facing service summary on GET /.
type rootResponse struct {
	Service      string   `json:"service"`
	Version      string   `json:"version"`
	Endpoints    []string `json:"endpoints"`
	TotalTokens  int      `json:"total_tokens"`
	ActiveTokens int      `json:"active_tokens"`
	TokensFile   string   `json:"tokens_file"`
	Source       string   `json:"snapshot_source"`
}

// Root handles GET /
func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	summary := h.service.Summary(r.Context())
	render.JSON(w, r, rootResponse{
		Service:      "license",
		Version:      h.version,
		Endpoints:    []string{"/activate", "/heartbeat", "/hook_config", "/sync_tokens"},
		TotalTokens:  summary.TotalTokens,
		ActiveTokens: summary.ActiveTokens,
		TokensFile:   summary.TokensFile,
		Source:       summary.SnapshotSource,
	})
}

// Health handles GET /api/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	summary := h.service.Summary(r.Context())
	render.JSON(w, r, map[string]any{
		"status":            "ok",
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
		"uptime":            time.Since(summary.StartedAt).String(),
		"total_tokens":      summary.TotalTokens,
		"validations_total": summary.ValidationsTotal,
	})
}

// Version handles GET /api/version
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{
		"service": "tokengate",
		"version": h.version,
	})
}
