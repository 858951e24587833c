package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/construction-crm/internal/domain"
	"github.com/ignite/construction-crm/internal/pkg/httputil"
	"github.com/ignite/construction-crm/internal/service/campaign"
	"github.com/ignite/construction-crm/internal/service/ratelimit"
)

// ListCampaigns handles GET /api/campaigns?status=&limit=&offset=
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	list, total, err := h.campaigns.List(r.Context(), campaign.ListFilter{
		Status: domain.CampaignStatus(r.URL.Query().Get("status")),
		Limit:  httputil.QueryInt(r, "limit", 50),
		Offset: httputil.QueryInt(r, "offset", 0),
	})
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"campaigns": list, "total": total})
}

// GetCampaign handles GET /api/campaigns/{id}, returning the campaign with
// its recipient counts.
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := h.campaigns.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	stats, err := h.campaigns.Stats(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"campaign": c, "stats": stats, "total": stats.Total()})
}

// CreateCampaign handles POST /api/campaigns
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.CreateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	c, enrolled, err := h.campaigns.CreateCampaign(r.Context(), in)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Created(w, map[string]any{"id": c.ID, "campaign": c, "enrollment": enrolled})
}

// AddCampaignRecipients handles POST /api/campaigns/{id}/recipients
func (h *Handlers) AddCampaignRecipients(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ContactIDs []string `json:"contact_ids"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	res, err := h.campaigns.AddRecipients(r.Context(), chi.URLParam(r, "id"), req.ContactIDs)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, res)
}

// ListCampaignRecipients handles GET /api/campaigns/{id}/recipients
func (h *Handlers) ListCampaignRecipients(w http.ResponseWriter, r *http.Request) {
	list, err := h.campaigns.Recipients(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"recipients": list})
}

// SendBatch handles POST /api/campaigns/{id}/send-batch?size=N. An exhausted
// rate window answers 429 with the usual batch shape plus the reason.
func (h *Handlers) SendBatch(w http.ResponseWriter, r *http.Request) {
	res, err := h.campaigns.SendBatch(r.Context(), chi.URLParam(r, "id"), httputil.QueryInt(r, "size", 0))
	var limited *ratelimit.RateLimitError
	if errors.As(err, &limited) {
		httputil.JSON(w, http.StatusTooManyRequests, map[string]any{
			"sent":   0,
			"errors": []string{},
			"reason": limited.Error(),
			"window": limited.Window,
		})
		return
	}
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, res)
}

// DeleteCampaign handles DELETE /api/campaigns/{id}
func (h *Handlers) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.campaigns.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, err)
		return
	}
	httputil.NoContent(w)
}
