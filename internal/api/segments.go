package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/construction-crm/internal/pkg/httputil"
	"github.com/ignite/construction-crm/internal/service/segment"
)

// ListSegments handles GET /api/segments
func (h *Handlers) ListSegments(w http.ResponseWriter, r *http.Request) {
	list, err := h.segments.List(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"segments": list})
}

// GetSegment handles GET /api/segments/{id}
func (h *Handlers) GetSegment(w http.ResponseWriter, r *http.Request) {
	s, err := h.segments.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, s)
}

// CreateSegment handles POST /api/segments
func (h *Handlers) CreateSegment(w http.ResponseWriter, r *http.Request) {
	var in segment.Input
	if !httputil.Decode(w, r, &in) {
		return
	}
	s, err := h.segments.Create(r.Context(), in)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Created(w, s)
}

// UpdateSegment handles PUT /api/segments/{id}
func (h *Handlers) UpdateSegment(w http.ResponseWriter, r *http.Request) {
	var in segment.Input
	if !httputil.Decode(w, r, &in) {
		return
	}
	s, err := h.segments.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, s)
}

// DeleteSegment handles DELETE /api/segments/{id}. Members are unlinked,
// never deleted.
func (h *Handlers) DeleteSegment(w http.ResponseWriter, r *http.Request) {
	if err := h.segments.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, err)
		return
	}
	httputil.NoContent(w)
}

// ListSegmentMembers handles GET /api/segments/{id}/members
func (h *Handlers) ListSegmentMembers(w http.ResponseWriter, r *http.Request) {
	ids, err := h.segments.Members(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"contact_ids": ids})
}

type bulkMembershipRequest struct {
	ContactIDs []string `json:"contact_ids"`
	SegmentIDs []string `json:"segment_ids"`
}

// BulkAddToSegments handles POST /api/segments/bulk-add. Each contact is
// processed on its own; failures are reported, not fatal.
func (h *Handlers) BulkAddToSegments(w http.ResponseWriter, r *http.Request) {
	var req bulkMembershipRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	res, err := h.segments.AddMany(r.Context(), req.ContactIDs, req.SegmentIDs)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, res)
}

// BulkRemoveFromSegments handles POST /api/segments/bulk-remove
func (h *Handlers) BulkRemoveFromSegments(w http.ResponseWriter, r *http.Request) {
	var req bulkMembershipRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	res, err := h.segments.RemoveMany(r.Context(), req.ContactIDs, req.SegmentIDs)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, res)
}

// GetContactSegments handles GET /api/contacts/{id}/segments
func (h *Handlers) GetContactSegments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.contacts.Get(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	list, err := h.segments.SegmentsOf(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"segments": list})
}

// SetContactSegments handles PUT /api/contacts/{id}/segments, replacing the
// contact's membership set.
func (h *Handlers) SetContactSegments(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SegmentIDs []string `json:"segment_ids"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.segments.SetMembership(r.Context(), id, req.SegmentIDs); err != nil {
		respondError(w, err)
		return
	}
	list, err := h.segments.SegmentsOf(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"segments": list})
}
