package api

import (
	"net/http"

	"github.com/ignite/construction-crm/internal/pkg/httputil"
	"github.com/ignite/construction-crm/internal/service/importer"
)

// ImportContacts handles POST /api/contacts/import. Row failures are
// reported in the result; the request itself only fails on bad input.
func (h *Handlers) ImportContacts(w http.ResponseWriter, r *http.Request) {
	var req importer.Request
	if !httputil.Decode(w, r, &req) {
		return
	}
	res, err := h.importer.Import(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, res)
}

// ImportContactsFromS3 handles POST /api/contacts/import/s3 with
// {bucket, key, mapping?, target_segment_ids?}.
func (h *Handlers) ImportContactsFromS3(w http.ResponseWriter, r *http.Request) {
	var req importer.ObjectRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	res, err := h.importer.ImportFromS3(r.Context(), h.s3, req)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, res)
}

// SuggestImportMapping handles POST /api/contacts/import/mapping with
// {headers[]}.
func (h *Handlers) SuggestImportMapping(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Headers []string `json:"headers"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	httputil.OK(w, map[string]any{
		"mapping":  importer.SuggestMapping(req.Headers),
		"max_rows": h.importer.MaxRows(),
	})
}
