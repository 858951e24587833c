package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ignite/construction-crm/internal/auth"
	"github.com/ignite/construction-crm/internal/pkg/httputil"
)

// SetupRoutes configures all API routes. hc may be nil in tests.
func SetupRoutes(h *Handlers, hc *HealthChecker, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID", auth.HeaderUserID, auth.HeaderRole},
		ExposedHeaders: []string{"Link"},
		MaxAge:         300,
	}))

	r.Use(auth.IdentityMiddleware)

	if hc != nil {
		r.Get("/health", hc.HandleHealth)
		r.Get("/health/live", hc.HandleLiveness)
		r.Get("/health/ready", hc.HandleReadiness)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/contacts", func(r chi.Router) {
			r.Get("/", h.ListContacts)
			r.Post("/", h.CreateContact)
			r.Post("/upsert", h.UpsertContact)

			r.Post("/import", h.ImportContacts)
			r.Post("/import/s3", h.ImportContactsFromS3)
			r.Post("/import/mapping", h.SuggestImportMapping)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetContact)
				r.Patch("/", h.UpdateContact)
				r.Delete("/", h.DeleteContact)
				r.Put("/status", h.SetContactStatus)
				r.Put("/flags", h.SetContactFlags)
				r.Get("/segments", h.GetContactSegments)
				r.Put("/segments", h.SetContactSegments)
				r.Get("/activities", h.ListActivities)
				r.Post("/activities", h.AddActivity)
			})
		})

		r.Post("/leads", h.ConvertLead)

		r.Route("/segments", func(r chi.Router) {
			r.Get("/", h.ListSegments)
			r.Post("/", h.CreateSegment)
			r.Post("/bulk-add", h.BulkAddToSegments)
			r.Post("/bulk-remove", h.BulkRemoveFromSegments)
			r.Get("/{id}", h.GetSegment)
			r.Put("/{id}", h.UpdateSegment)
			r.Delete("/{id}", h.DeleteSegment)
			r.Get("/{id}/members", h.ListSegmentMembers)
		})

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", h.ListTemplates)
			r.Post("/", h.CreateTemplate)
			r.Get("/{id}", h.GetTemplate)
			r.Put("/{id}", h.UpdateTemplate)
			r.Delete("/{id}", h.DeleteTemplate)
			r.Post("/{id}/preview", h.PreviewTemplate)
		})

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", h.ListCampaigns)
			r.Post("/", h.CreateCampaign)
			r.Get("/{id}", h.GetCampaign)
			r.Delete("/{id}", h.DeleteCampaign)
			r.Get("/{id}/recipients", h.ListCampaignRecipients)
			r.Post("/{id}/recipients", h.AddCampaignRecipients)
			r.Post("/{id}/send-batch", h.SendBatch)
		})

		r.Get("/views/{view}", h.GetView)
		r.Put("/views/{view}", h.TouchView)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.NotFound(w, "route not found")
	})
	return r
}
