package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/construction-crm/internal/domain"
	"github.com/ignite/construction-crm/internal/pkg/httputil"
	"github.com/ignite/construction-crm/internal/service/template"
)

// ListTemplates handles GET /api/templates
func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := h.templates.List(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"templates": list})
}

// GetTemplate handles GET /api/templates/{id}
func (h *Handlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.templates.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, t)
}

// CreateTemplate handles POST /api/templates
func (h *Handlers) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var in template.Input
	if !httputil.Decode(w, r, &in) {
		return
	}
	t, err := h.templates.Create(r.Context(), in)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Created(w, t)
}

// UpdateTemplate handles PUT /api/templates/{id}
func (h *Handlers) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var in template.Input
	if !httputil.Decode(w, r, &in) {
		return
	}
	t, err := h.templates.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, t)
}

// DeleteTemplate handles DELETE /api/templates/{id}. A template still used
// by a campaign is a conflict.
func (h *Handlers) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.templates.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, err)
		return
	}
	httputil.NoContent(w)
}

// PreviewTemplate handles POST /api/templates/{id}/preview. The body names a
// stored contact or carries an inline one; with neither, placeholders render
// against an empty contact.
func (h *Handlers) PreviewTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ContactID string          `json:"contact_id"`
		Contact   *domain.Contact `json:"contact"`
	}
	if r.ContentLength != 0 && !httputil.Decode(w, r, &req) {
		return
	}
	c := req.Contact
	if req.ContactID != "" {
		stored, err := h.contacts.Get(r.Context(), req.ContactID)
		if err != nil {
			respondError(w, err)
			return
		}
		c = stored
	}
	if c == nil {
		c = &domain.Contact{}
	}
	p, err := h.templates.Preview(r.Context(), chi.URLParam(r, "id"), c)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, p)
}
