package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/construction-crm/internal/auth"
	"github.com/ignite/construction-crm/internal/pkg/httputil"
)

// viewer returns the calling user. Identity is only attached when a role is
// asserted, so the raw header is the fallback.
func viewer(r *http.Request) string {
	if id, ok := auth.IdentityFrom(r.Context()); ok && id.UserID != "" {
		return id.UserID
	}
	return strings.TrimSpace(r.Header.Get(auth.HeaderUserID))
}

// TouchView handles PUT /api/views/{view}, stamping the caller's last visit.
func (h *Handlers) TouchView(w http.ResponseWriter, r *http.Request) {
	st, err := h.views.Touch(r.Context(), viewer(r), chi.URLParam(r, "view"))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, st)
}

// GetView handles GET /api/views/{view}
func (h *Handlers) GetView(w http.ResponseWriter, r *http.Request) {
	st, err := h.views.Get(r.Context(), viewer(r), chi.URLParam(r, "view"))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, st)
}
