package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/construction-crm/internal/api"
	"github.com/ignite/construction-crm/internal/auth"
	"github.com/ignite/construction-crm/internal/config"
	"github.com/ignite/construction-crm/internal/domain"
	"github.com/ignite/construction-crm/internal/repository/memory"
	"github.com/ignite/construction-crm/internal/service/activity"
	"github.com/ignite/construction-crm/internal/service/campaign"
	"github.com/ignite/construction-crm/internal/service/contact"
	"github.com/ignite/construction-crm/internal/service/importer"
	"github.com/ignite/construction-crm/internal/service/ratelimit"
	"github.com/ignite/construction-crm/internal/service/segment"
	"github.com/ignite/construction-crm/internal/service/sending"
	"github.com/ignite/construction-crm/internal/service/template"
	"github.com/ignite/construction-crm/internal/service/viewstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopSender struct{}

func (nopSender) Send(context.Context, *sending.Message) error { return nil }

type server struct {
	router   *chi.Mux
	contacts *memory.ContactRepo
}

func newServer(t *testing.T, authz auth.Authorizer, limits ratelimit.Limits) *server {
	t.Helper()
	db := memory.NewDB()
	contacts := memory.NewContactRepo(db)
	segments := memory.NewSegmentRepo(db)
	templates := memory.NewTemplateRepo(db)
	activities := memory.NewActivityRepo(db)
	governor := ratelimit.NewGovernor(memory.NewSentCounter(db), limits)

	h := api.NewHandlers(api.Services{
		Contacts:  contact.NewService(contacts, activities, authz, nil),
		Segments:  segment.NewService(segments, authz, nil),
		Templates: template.NewService(templates, template.NewRenderer(), authz, nil),
		Campaigns: campaign.NewEngine(campaign.Deps{
			Repo:       memory.NewCampaignRepo(db),
			Contacts:   contacts,
			Templates:  templates,
			Activities: activities,
			Governor:   governor,
			Sender:     nopSender{},
			Authz:      authz,
		}),
		Importer:   importer.NewPipeline(contact.NewStore(contacts), segments, authz, nil, 100),
		Activities: activity.NewService(activities, authz, nil),
		Views:      viewstate.NewService(memory.NewViewStateRepo(db)),
	})
	hc := api.NewHealthChecker(nil, nil, governor)
	return &server{router: api.SetupRoutes(h, hc, nil), contacts: contacts}
}

func (s *server) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst), w.Body.String())
}

func (s *server) createContact(t *testing.T, email, name string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/contacts", map[string]any{"email": email, "name": name})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var c domain.Contact
	decode(t, w, &c)
	return c.ID
}

func TestContactLifecycle(t *testing.T) {
	s := newServer(t, nil, ratelimit.Limits{Hourly: 20, Daily: 50})

	id := s.createContact(t, " Jane@Example.com ", "Jane Doe")

	w := s.do(t, http.MethodGet, "/api/contacts/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got domain.Contact
	decode(t, w, &got)
	assert.Equal(t, "jane@example.com", got.Email)
	assert.Equal(t, domain.ContactNew, got.Status)

	w = s.do(t, http.MethodPost, "/api/contacts", map[string]any{"email": "jane@example.com"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/contacts", map[string]any{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/api/contacts/"+id+"/status", map[string]any{"status": "qualified"})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &got)
	assert.Equal(t, domain.ContactQualified, got.Status)

	w = s.do(t, http.MethodPatch, "/api/contacts/"+id, map[string]any{"company": "Acme Decks"})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &got)
	assert.Equal(t, "Acme Decks", got.Company)

	w = s.do(t, http.MethodGet, "/api/contacts?q=acme", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Contacts []domain.Contact `json:"contacts"`
		Total    int              `json:"total"`
	}
	decode(t, w, &list)
	assert.Equal(t, 1, list.Total)

	w = s.do(t, http.MethodDelete, "/api/contacts/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/api/contacts/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	var errBody map[string]any
	decode(t, w, &errBody)
	assert.Equal(t, "not_found", errBody["code"])
}

func TestUpsertAndLead(t *testing.T) {
	s := newServer(t, nil, ratelimit.Limits{Hourly: 20, Daily: 50})

	w := s.do(t, http.MethodPost, "/api/contacts/upsert", map[string]any{"email": "bob@example.com", "phone": "555"})
	assert.Equal(t, http.StatusCreated, w.Code)
	w = s.do(t, http.MethodPost, "/api/contacts/upsert", map[string]any{"email": "BOB@example.com", "phone": "999", "company": "Bob Co"})
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Contact domain.Contact `json:"contact"`
		Created bool           `json:"created"`
	}
	decode(t, w, &out)
	assert.False(t, out.Created)
	assert.Equal(t, "555", out.Contact.Phone)
	assert.Equal(t, "Bob Co", out.Contact.Company)

	w = s.do(t, http.MethodPost, "/api/leads", map[string]any{"form": "quote", "email": "lead@example.com", "name": "Lee"})
	require.Equal(t, http.StatusCreated, w.Code)
	var lead struct {
		ID string `json:"id"`
	}
	decode(t, w, &lead)

	w = s.do(t, http.MethodGet, "/api/contacts/"+lead.ID+"/activities", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var acts struct {
		Activities []domain.Activity `json:"activities"`
	}
	decode(t, w, &acts)
	require.Len(t, acts.Activities, 1)
	assert.Equal(t, domain.ActivityFormSubmission, acts.Activities[0].Kind)
}

func TestSegmentMembership(t *testing.T) {
	s := newServer(t, nil, ratelimit.Limits{Hourly: 20, Daily: 50})
	a := s.createContact(t, "a@example.com", "A")
	b := s.createContact(t, "b@example.com", "B")

	w := s.do(t, http.MethodPost, "/api/segments", map[string]any{"name": "Decks", "color": "#FF0000"})
	require.Equal(t, http.StatusCreated, w.Code)
	var seg domain.Segment
	decode(t, w, &seg)
	assert.Equal(t, "#ff0000", seg.Color)

	w = s.do(t, http.MethodPost, "/api/segments", map[string]any{"name": "Bad", "color": "red"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/api/contacts/"+a+"/segments", map[string]any{"segment_ids": []string{seg.ID}})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/segments/bulk-add", map[string]any{
		"contact_ids": []string{b, "missing"},
		"segment_ids": []string{seg.ID},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var bulk segment.BulkResult
	decode(t, w, &bulk)
	assert.Equal(t, 1, bulk.Succeeded)
	assert.Equal(t, 1, bulk.Failed)

	w = s.do(t, http.MethodGet, "/api/segments/"+seg.ID+"/members", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var members struct {
		ContactIDs []string `json:"contact_ids"`
	}
	decode(t, w, &members)
	assert.ElementsMatch(t, []string{a, b}, members.ContactIDs)

	w = s.do(t, http.MethodDelete, "/api/segments/"+seg.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodGet, "/api/contacts/"+a, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestImportContacts(t *testing.T) {
	s := newServer(t, nil, ratelimit.Limits{Hourly: 20, Daily: 50})

	rows := []map[string]string{
		{"Email": "one@example.com", "Name": "One"},
		{"Email": "bogus", "Name": "Two"},
	}
	w := s.do(t, http.MethodPost, "/api/contacts/import", map[string]any{"rows": rows})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res importer.Result
	decode(t, w, &res)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Failed)
	assert.Len(t, res.Errors, 1)

	w = s.do(t, http.MethodPost, "/api/contacts/import", map[string]any{
		"rows":               rows[:1],
		"target_segment_ids": []string{"nope"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/contacts/import/s3", map[string]any{"bucket": "b", "key": "k.csv"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/contacts/import/mapping", map[string]any{"headers": []string{"E-mail", "Company"}})
	require.Equal(t, http.StatusOK, w.Code)
	var mapping struct {
		Mapping map[string]string `json:"mapping"`
		MaxRows int               `json:"max_rows"`
	}
	decode(t, w, &mapping)
	assert.Equal(t, "email", mapping.Mapping["E-mail"])
	assert.Equal(t, 100, mapping.MaxRows)
}

func TestActivities(t *testing.T) {
	s := newServer(t, nil, ratelimit.Limits{Hourly: 20, Daily: 50})
	id := s.createContact(t, "a@example.com", "A")

	w := s.do(t, http.MethodPost, "/api/contacts/"+id+"/activities", map[string]any{
		"type":    "note",
		"payload": map[string]any{"text": "Wants a cedar deck"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var a domain.Activity
	decode(t, w, &a)
	assert.Equal(t, domain.NotePayload{Text: "Wants a cedar deck"}, a.Payload)

	w = s.do(t, http.MethodPost, "/api/contacts/"+id+"/activities", map[string]any{"type": "fax", "payload": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/contacts/missing/activities", map[string]any{
		"type":    "note",
		"payload": map[string]any{"text": "x"},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTemplatePreview(t *testing.T) {
	s := newServer(t, nil, ratelimit.Limits{Hourly: 20, Daily: 50})
	id := s.createContact(t, "jane@example.com", "Jane Doe")

	w := s.do(t, http.MethodPost, "/api/templates", map[string]any{
		"name": "Intro", "subject": "Hi {{first_name}}", "body": "Hello {{full_name}}",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var tpl domain.EmailTemplate
	decode(t, w, &tpl)

	w = s.do(t, http.MethodPost, "/api/templates/"+tpl.ID+"/preview", map[string]any{"contact_id": id})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var p template.Preview
	decode(t, w, &p)
	assert.Equal(t, "Hi Jane", p.Subject)
	assert.Equal(t, "Hello Jane Doe", p.Body)

	w = s.do(t, http.MethodPost, "/api/templates", map[string]any{"name": "Broken", "subject": "Hi {{first_name", "body": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCampaignSendBatchRateLimited(t *testing.T) {
	s := newServer(t, nil, ratelimit.Limits{Hourly: 1, Daily: 50})
	a := s.createContact(t, "a@example.com", "A")
	b := s.createContact(t, "b@example.com", "B")

	w := s.do(t, http.MethodPost, "/api/templates", map[string]any{"name": "Intro", "subject": "Hi", "body": "Hello"})
	require.Equal(t, http.StatusCreated, w.Code)
	var tpl domain.EmailTemplate
	decode(t, w, &tpl)

	w = s.do(t, http.MethodPost, "/api/campaigns", map[string]any{
		"name": "Spring", "type": "newsletter", "template_id": tpl.ID, "contact_ids": []string{a, b},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		ID         string                `json:"id"`
		Enrollment campaign.EnrollResult `json:"enrollment"`
	}
	decode(t, w, &created)
	assert.Equal(t, 2, created.Enrollment.Enrolled)

	w = s.do(t, http.MethodPost, "/api/campaigns/"+created.ID+"/send-batch?size=10", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var batch campaign.BatchResult
	decode(t, w, &batch)
	assert.Equal(t, 1, batch.Sent)
	assert.Equal(t, 1, batch.Remaining)

	w = s.do(t, http.MethodPost, "/api/campaigns/"+created.ID+"/send-batch", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	var limited struct {
		Sent   int      `json:"sent"`
		Errors []string `json:"errors"`
		Reason string   `json:"reason"`
		Window string   `json:"window"`
	}
	decode(t, w, &limited)
	assert.Equal(t, 0, limited.Sent)
	assert.Empty(t, limited.Errors)
	assert.NotEmpty(t, limited.Reason)
	assert.Equal(t, "hour", limited.Window)

	w = s.do(t, http.MethodGet, "/api/campaigns/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail struct {
		Stats domain.CampaignStats `json:"stats"`
		Total int                  `json:"total"`
	}
	decode(t, w, &detail)
	assert.Equal(t, domain.CampaignStats{Pending: 1, Sent: 1}, detail.Stats)
	assert.Equal(t, 2, detail.Total)

	w = s.do(t, http.MethodDelete, "/api/templates/"+tpl.ID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestForbiddenRole(t *testing.T) {
	s := newServer(t, auth.NewRoleAuthorizer(config.DefaultRoles()), ratelimit.Limits{Hourly: 20, Daily: 50})

	w := s.do(t, http.MethodPost, "/api/contacts", map[string]any{"email": "a@example.com"},
		auth.HeaderUserID, "u1", auth.HeaderRole, "viewer")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/api/contacts", map[string]any{"email": "a@example.com"},
		auth.HeaderUserID, "u1", auth.HeaderRole, "sales")
	assert.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodPost, "/api/templates", map[string]any{"name": "x", "subject": "s", "body": "b"},
		auth.HeaderUserID, "u1", auth.HeaderRole, "sales")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestViewState(t *testing.T) {
	s := newServer(t, nil, ratelimit.Limits{Hourly: 20, Daily: 50})

	w := s.do(t, http.MethodGet, "/api/views/contacts", nil, auth.HeaderUserID, "u1")
	require.Equal(t, http.StatusOK, w.Code)
	var st domain.ListViewState
	decode(t, w, &st)
	assert.True(t, st.LastViewedAt.IsZero())

	w = s.do(t, http.MethodPut, "/api/views/Contacts", nil, auth.HeaderUserID, "u1")
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/views/contacts", nil, auth.HeaderUserID, "u1")
	decode(t, w, &st)
	assert.Equal(t, "contacts", st.View)
	assert.False(t, st.LastViewedAt.IsZero())

	w = s.do(t, http.MethodGet, "/api/views/contacts", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	s := newServer(t, nil, ratelimit.Limits{Hourly: 20, Daily: 50})

	w := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var hs api.HealthStatus
	decode(t, w, &hs)
	assert.Equal(t, "healthy", hs.Status)
	assert.Equal(t, "up", hs.Checks["send_capacity"].Status)
	assert.Equal(t, "down", hs.Checks["database"].Status)

	w = s.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
