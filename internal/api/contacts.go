package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/construction-crm/internal/domain"
	"github.com/ignite/construction-crm/internal/pkg/httputil"
	"github.com/ignite/construction-crm/internal/service/contact"
)

type contactRequest struct {
	Email string `json:"email"`
	domain.ContactFields
}

// ListContacts handles GET /api/contacts?status=&segment_id=&q=&limit=&offset=
func (h *Handlers) ListContacts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, total, err := h.contacts.List(r.Context(), contact.ListFilter{
		Status:    domain.ContactStatus(q.Get("status")),
		SegmentID: q.Get("segment_id"),
		Search:    q.Get("q"),
		Limit:     httputil.QueryInt(r, "limit", 50),
		Offset:    httputil.QueryInt(r, "offset", 0),
	})
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"contacts": list, "total": total})
}

// GetContact handles GET /api/contacts/{id}
func (h *Handlers) GetContact(w http.ResponseWriter, r *http.Request) {
	c, err := h.contacts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, c)
}

// CreateContact handles POST /api/contacts. A taken email is a conflict.
func (h *Handlers) CreateContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	c, err := h.contacts.Create(r.Context(), req.Email, req.ContactFields)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Created(w, c)
}

// UpsertContact handles POST /api/contacts/upsert: add the contact or fill
// the blank fields of the existing one.
func (h *Handlers) UpsertContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	c, created, err := h.contacts.Upsert(r.Context(), req.Email, req.ContactFields)
	if err != nil {
		respondError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.JSON(w, status, map[string]any{"contact": c, "created": created})
}

// UpdateContact handles PATCH /api/contacts/{id}
func (h *Handlers) UpdateContact(w http.ResponseWriter, r *http.Request) {
	var req contact.UpdateFields
	if !httputil.Decode(w, r, &req) {
		return
	}
	c, err := h.contacts.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, c)
}

// DeleteContact handles DELETE /api/contacts/{id}
func (h *Handlers) DeleteContact(w http.ResponseWriter, r *http.Request) {
	if err := h.contacts.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, err)
		return
	}
	httputil.NoContent(w)
}

// SetContactStatus handles PUT /api/contacts/{id}/status
func (h *Handlers) SetContactStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status domain.ContactStatus `json:"status"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	c, err := h.contacts.SetStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, c)
}

// SetContactFlags handles PUT /api/contacts/{id}/flags
func (h *Handlers) SetContactFlags(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DoNotContact bool `json:"do_not_contact"`
		Unsubscribed bool `json:"unsubscribed"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	c, err := h.contacts.SetFlags(r.Context(), chi.URLParam(r, "id"), req.DoNotContact, req.Unsubscribed)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, c)
}

// ConvertLead handles POST /api/leads from the marketing site.
func (h *Handlers) ConvertLead(w http.ResponseWriter, r *http.Request) {
	var req contact.Lead
	if !httputil.Decode(w, r, &req) {
		return
	}
	c, created, err := h.contacts.ConvertLead(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.JSON(w, status, map[string]any{"id": c.ID, "created": created})
}

// ListActivities handles GET /api/contacts/{id}/activities?limit=
func (h *Handlers) ListActivities(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.contacts.Get(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	list, err := h.activities.List(r.Context(), id, httputil.QueryInt(r, "limit", 0))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"activities": list})
}

// AddActivity handles POST /api/contacts/{id}/activities with
// {"type": "...", "payload": {...}}.
func (h *Handlers) AddActivity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type    domain.ActivityKind `json:"type"`
		Payload json.RawMessage     `json:"payload"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	payload, err := domain.DecodeActivityPayload(req.Type, req.Payload)
	if err != nil {
		respondError(w, err)
		return
	}
	a, err := h.activities.Append(r.Context(), chi.URLParam(r, "id"), payload)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Created(w, a)
}
