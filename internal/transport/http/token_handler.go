package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "tokengate/internal/errors"
	"tokengate/internal/services"
	"tokengate/internal/token"
)

// TokenHandler exposes the operator-facing token administration API.
type TokenHandler struct {
	service services.TokenService
	logger  *slog.Logger
}

// NewTokenHandler creates a new token admin handler
func NewTokenHandler(service services.TokenService, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "tokens")),
	}
}

// CreateTokenRequest is the admin payload for creating a token. Leaving
// Token empty generates a random one. DaysValid and HoursValid are
// alternatives; days win when both are set.
type CreateTokenRequest struct {
	Token       string `json:"token,omitempty" validate:"omitempty,max=128"`
	DaysValid   int    `json:"days_valid,omitempty" validate:"omitempty,min=1,max=3650"`
	HoursValid  int    `json:"hours_valid,omitempty" validate:"omitempty,min=1,max=87600"`
	Description string `json:"description,omitempty" validate:"max=500"`
}

// Bind implements the render.Binder interface
func (c *CreateTokenRequest) Bind(r *http.Request) error {
	return validate.Struct(c)
}

// tokenActionResponse reports activation-state changes and deletions.
type tokenActionResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}

// tokenListResponse wraps a listing with its count.
type tokenListResponse struct {
	Tokens []token.Info `json:"tokens"`
	Count  int          `json:"count"`
}

// Routes returns the admin router, mounted under /api/tokens.
func (h *TokenHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Route("/{token}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Delete)
		r.Post("/activate", h.Activate)
		r.Post("/deactivate", h.Deactivate)
		r.Get("/remaining", h.Remaining)
	})
	return r
}

// Create handles POST /api/tokens
func (h *TokenHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := &CreateTokenRequest{}
	if err := render.Bind(r, req); err != nil {
		renderError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	info, err := h.service.Create(ctx, token.CreateRequest{
		Token:       req.Token,
		DaysValid:   req.DaysValid,
		HoursValid:  req.HoursValid,
		Description: req.Description,
	})
	if err != nil {
		if errors.Is(err, token.ErrDuplicateToken) {
			renderError(w, r, apierrors.DuplicateTokenError(err))
			return
		}
		h.logger.ErrorContext(ctx, "token creation failed",
			slog.String("error", err.Error()))
		renderError(w, r, apierrors.ErrInternalServer)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, info)
}

// List handles GET /api/tokens?active_only=true
func (h *TokenHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active_only"))
	tokens := h.service.List(r.Context(), activeOnly)
	render.JSON(w, r, tokenListResponse{Tokens: tokens, Count: len(tokens)})
}

// Get handles GET /api/tokens/{token}
func (h *TokenHandler) Get(w http.ResponseWriter, r *http.Request) {
	tok := chi.URLParam(r, "token")
	info, ok := h.service.Get(r.Context(), tok)
	if !ok {
		renderError(w, r, apierrors.NotFoundError("token"))
		return
	}
	render.JSON(w, r, info)
}

// Delete handles DELETE /api/tokens/{token}
func (h *TokenHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tok := chi.URLParam(r, "token")
	if !h.service.Delete(r.Context(), tok) {
		renderError(w, r, apierrors.NotFoundError("token"))
		return
	}
	render.JSON(w, r, tokenActionResponse{Success: true, Token: tok})
}

// Activate handles POST /api/tokens/{token}/activate
func (h *TokenHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

// Deactivate handles POST /api/tokens/{token}/deactivate
func (h *TokenHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *TokenHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	tok := chi.URLParam(r, "token")

	var ok bool
	if active {
		ok = h.service.Activate(r.Context(), tok)
	} else {
		ok = h.service.Deactivate(r.Context(), tok)
	}
	if !ok {
		renderError(w, r, apierrors.NotFoundError("token"))
		return
	}
	render.JSON(w, r, tokenActionResponse{Success: true, Token: tok})
}

// Remaining handles GET /api/tokens/{token}/remaining
func (h *TokenHandler) Remaining(w http.ResponseWriter, r *http.Request) {
	tok := chi.URLParam(r, "token")
	remaining, ok := h.service.TimeRemaining(r.Context(), tok)
	if !ok {
		renderError(w, r, apierrors.NotFoundError("token"))
		return
	}
	render.JSON(w, r, map[string]string{
		"token":          tok,
		"time_remaining": remaining,
	})
}
