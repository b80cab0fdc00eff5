package http

import (
	"net/http"

	"github.com/go-chi/render"

	apierrors "tokengate/internal/errors"
)

// renderError writes an admin API error in the standard envelope. The access
// endpoints do not use this; they answer with their own compact shape.
func renderError(w http.ResponseWriter, r *http.Request, apiErr *apierrors.APIError) {
	render.Render(w, r, apierrors.NewErrorResponse(apiErr))
}
