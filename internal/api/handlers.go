// Package api is the HTTP/JSON boundary of the CRM core.
package api

import (
	"github.com/ignite/construction-crm/internal/service/activity"
	"github.com/ignite/construction-crm/internal/service/campaign"
	"github.com/ignite/construction-crm/internal/service/contact"
	"github.com/ignite/construction-crm/internal/service/importer"
	"github.com/ignite/construction-crm/internal/service/segment"
	"github.com/ignite/construction-crm/internal/service/template"
	"github.com/ignite/construction-crm/internal/service/viewstate"
)

// Handlers holds the services behind the HTTP routes.
type Handlers struct {
	contacts   *contact.Service
	segments   *segment.Service
	templates  *template.Service
	campaigns  *campaign.Engine
	importer   *importer.Pipeline
	activities *activity.Service
	views      *viewstate.Service

	// s3 is nil when S3 imports are not configured.
	s3 importer.S3API
}

// Services bundles the dependencies of NewHandlers.
type Services struct {
	Contacts   *contact.Service
	Segments   *segment.Service
	Templates  *template.Service
	Campaigns  *campaign.Engine
	Importer   *importer.Pipeline
	Activities *activity.Service
	Views      *viewstate.Service
	S3         importer.S3API
}

// NewHandlers creates the route handlers.
func NewHandlers(s Services) *Handlers {
	return &Handlers{
		contacts:   s.Contacts,
		segments:   s.Segments,
		templates:  s.Templates,
		campaigns:  s.Campaigns,
		importer:   s.Importer,
		activities: s.Activities,
		views:      s.Views,
		s3:         s.S3,
	}
}
