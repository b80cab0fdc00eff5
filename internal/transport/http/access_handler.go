package http

import (
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tokengate/internal/services"
)

// maxAccessBodyBytes bounds how much of an access request body is parsed
// while looking for a token.
const maxAccessBodyBytes = 1 << 20

// AccessHandler serves the endpoints licensed clients call. Every endpoint
// extracts a candidate token from the request and runs it through the
// lifecycle engine; a successful check counts as one use of the token.
type AccessHandler struct {
	service services.TokenService
	logger  *slog.Logger
}

// NewAccessHandler creates a new access handler
func NewAccessHandler(service services.TokenService, logger *slog.Logger) *AccessHandler {
	return &AccessHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "access")),
	}
}

// accessResponse is the success payload the addon expects.
type accessResponse struct {
	OK      bool   `json:"ok"`
	Success bool   `json:"success,omitempty"`
	Token   string `json:"token,omitempty"`
}

// accessError is the failure payload the addon expects: a detail string and
// an ok flag, not the admin APIError envelope.
type accessError struct {
	Detail string `json:"detail"`
	OK     bool   `json:"ok"`
}

// Routes returns the access endpoints. The addon has shipped with both bare
// and /api-prefixed paths over time, so both are registered.
func (h *AccessHandler) Routes() chi.Router {
	r := chi.NewRouter()
	for _, path := range []string{"/activate", "/heartbeat", "/hook_config"} {
		r.Post(path, h.endpoint(path))
		r.Get(path, h.endpoint(path))
	}
	return r
}

func (h *AccessHandler) endpoint(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tracer := otel.Tracer("access-handler")
		ctx, span := tracer.Start(ctx, "access.check_token",
			trace.WithAttributes(
				attribute.String("http.route", path),
				attribute.String("http.method", r.Method),
			),
		)
		defer span.End()
		r = r.WithContext(ctx)

		start := time.Now()
		tok, ok := ExtractToken(r)
		if !ok {
			span.SetAttributes(attribute.String("token.result", "missing"))
			h.logger.InfoContext(ctx, "access request without token",
				slog.String("path", path))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, accessError{Detail: "Missing token", OK: false})
			return
		}

		valid, reason := h.service.Validate(ctx, tok)
		span.SetAttributes(
			attribute.Bool("token.valid", valid),
			attribute.Float64("token.check_ms", float64(time.Since(start).Milliseconds())),
		)
		if !valid {
			span.SetAttributes(attribute.String("token.result", reason))
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, accessError{Detail: reason, OK: false})
			return
		}

		switch path {
		case "/activate":
			render.JSON(w, r, accessResponse{OK: true, Success: true, Token: tok})
		default:
			render.JSON(w, r, accessResponse{OK: true})
		}
	}
}

// ExtractToken pulls a candidate token out of the request, trying a JSON
// body field, then a form field, then a query parameter, each matched
// case-insensitively against the name "token". It returns false when no
// candidate is found anywhere.
func ExtractToken(r *http.Request) (string, bool) {
	if isJSONRequest(r) && r.Body != nil {
		var body map[string]any
		dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxAccessBodyBytes))
		if err := dec.Decode(&body); err == nil {
			if tok, ok := lookupTokenField(body); ok {
				return tok, true
			}
		}
	}

	if err := r.ParseForm(); err == nil {
		if tok, ok := lookupTokenValues(r.PostForm); ok {
			return tok, true
		}
	}

	return lookupTokenValues(r.URL.Query())
}

func isJSONRequest(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mediaType == "application/json"
}

func lookupTokenField(body map[string]any) (string, bool) {
	for key, value := range body {
		if !strings.EqualFold(key, "token") {
			continue
		}
		if tok, ok := value.(string); ok && tok != "" {
			return tok, true
		}
	}
	return "", false
}

func lookupTokenValues(values url.Values) (string, bool) {
	for key, vals := range values {
		if !strings.EqualFold(key, "token") {
			continue
		}
		if len(vals) > 0 && vals[0] != "" {
			return vals[0], true
		}
	}
	return "", false
}
