package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	apierrors "tokengate/internal/errors"
	"tokengate/internal/services"
	"tokengate/internal/token"
)

// SyncHandler accepts token batches pushed from the external distribution
// channel (the bot managing token sales) and folds them into the store.
type SyncHandler struct {
	service services.TokenService
	logger  *slog.Logger
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(service services.TokenService, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "sync")),
	}
}

// SyncRequest is the batch payload. A nil Tokens field (the key missing
// entirely) is a structural error and rejects the whole request; an empty
// array is a valid no-op batch.
type SyncRequest struct {
	Tokens *[]token.Descriptor `json:"tokens" validate:"required"`
}

// Bind implements the render.Binder interface
func (s *SyncRequest) Bind(r *http.Request) error {
	return validate.Struct(s)
}

// syncResponse mirrors the reference response: ok plus the count of entries
// that were applied.
type syncResponse struct {
	OK     bool `json:"ok"`
	Synced int  `json:"synced"`
	token.SyncResult
}

// Sync handles POST /sync_tokens
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := &SyncRequest{}
	if err := render.Bind(r, req); err != nil {
		h.logger.WarnContext(ctx, "rejected structurally invalid sync batch",
			slog.String("error", err.Error()))
		renderError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	res := h.service.Sync(ctx, *req.Tokens)
	render.JSON(w, r, syncResponse{OK: true, Synced: res.Processed, SyncResult: res})
}
