package api

import (
	"errors"
	"net/http"

	"github.com/ignite/construction-crm/internal/auth"
	"github.com/ignite/construction-crm/internal/domain"
	"github.com/ignite/construction-crm/internal/pkg/httputil"
	"github.com/ignite/construction-crm/internal/service/activity"
	"github.com/ignite/construction-crm/internal/service/campaign"
	"github.com/ignite/construction-crm/internal/service/contact"
	"github.com/ignite/construction-crm/internal/service/importer"
	"github.com/ignite/construction-crm/internal/service/ratelimit"
	"github.com/ignite/construction-crm/internal/service/segment"
	"github.com/ignite/construction-crm/internal/service/template"
	"github.com/ignite/construction-crm/internal/service/viewstate"
)

type errorClass struct {
	status int
	code   string
	errs   []error
}

var errorClasses = []errorClass{
	{http.StatusForbidden, "forbidden", []error{auth.ErrForbidden}},
	{http.StatusTooManyRequests, "rate_limited", []error{ratelimit.ErrRateLimited}},
	{http.StatusNotFound, "not_found", []error{
		contact.ErrNotFound, segment.ErrNotFound, template.ErrNotFound,
		campaign.ErrNotFound, campaign.ErrTemplateNotFound, activity.ErrContactNotFound,
	}},
	{http.StatusBadRequest, "invalid_input", []error{
		contact.ErrInvalidInput, segment.ErrInvalidInput, template.ErrInvalidInput,
		template.ErrInvalidTemplate, campaign.ErrInvalidInput, importer.ErrInvalidInput,
		importer.ErrTooManyRows, viewstate.ErrInvalidInput, domain.ErrInvalidActivity,
	}},
	{http.StatusConflict, "conflict", []error{
		contact.ErrDuplicateEmail, template.ErrInUse,
		campaign.ErrCampaignCompleted, campaign.ErrDispatchBusy,
	}},
}

// classify maps a service error to an HTTP status and error code. Unknown
// errors are 500.
func classify(err error) (int, string) {
	for _, c := range errorClasses {
		for _, target := range c.errs {
			if errors.Is(err, target) {
				return c.status, c.code
			}
		}
	}
	return http.StatusInternalServerError, "internal"
}

// respondError writes err with its mapped status. 5xx errors are logged and
// replaced by a generic message so storage details never reach the client.
func respondError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		httputil.InternalError(w, err)
		return
	}
	httputil.ErrorWithCode(w, status, code, err.Error(), nil)
}
