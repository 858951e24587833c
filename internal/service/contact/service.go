package contact

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/construction-crm/internal/audit"
	"github.com/ignite/construction-crm/internal/auth"
	"github.com/ignite/construction-crm/internal/domain"
	"github.com/ignite/construction-crm/internal/pkg/logger"
)

// LeadSource is stamped on contacts created from the site's lead forms.
const LeadSource = "website_form"

// Service implements contact business logic. All public methods are safe
// for concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo       Repository
	store      *Store
	authz      auth.Authorizer
	audit      audit.Sink
	activities ActivityAppender
	now        func() time.Time
}

// NewService creates a contact service. A nil authorizer permits everything
// and a nil sink discards audit events.
func NewService(repo Repository, activities ActivityAppender, authz auth.Authorizer, sink audit.Sink) *Service {
	if authz == nil {
		authz = auth.AllowAll{}
	}
	if sink == nil {
		sink = audit.Nop{}
	}
	return &Service{
		repo:       repo,
		store:      NewStore(repo),
		authz:      authz,
		audit:      sink,
		activities: activities,
		now:        time.Now,
	}
}

// Store exposes the unchecked upsert core for orchestrators that have
// already authorized the whole operation.
func (s *Service) Store() *Store { return s.store }

// Get returns a single contact.
func (s *Service) Get(ctx context.Context, id string) (*domain.Contact, error) {
	return s.repo.Get(ctx, id)
}

// GetByEmail returns the contact with the given email, in any casing.
func (s *Service) GetByEmail(ctx context.Context, email string) (*domain.Contact, error) {
	return s.repo.GetByEmail(ctx, domain.NormalizeEmail(email))
}

// List returns contacts matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Contact, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: status %q", ErrInvalidInput, f.Status)
	}
	f.Search = strings.TrimSpace(f.Search)
	return s.repo.List(ctx, f)
}

// Create adds a contact by manual entry. Unlike Upsert it refuses an email
// that already exists.
func (s *Service) Create(ctx context.Context, email string, f domain.ContactFields) (*domain.Contact, error) {
	if err := s.authz.IsPermitted(ctx, auth.ActionContactWrite); err != nil {
		return nil, err
	}
	email = domain.NormalizeEmail(email)
	if !domain.ValidEmail(email) {
		return nil, fmt.Errorf("%w: email %q", ErrInvalidInput, email)
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: status %q", ErrInvalidInput, f.Status)
	}
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	c := f.NewContact(email)
	c.ID = uuid.New().String()
	now := s.now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.NewEvent(ctx, "contact.create", "contact", c.ID, nil))
	return c, nil
}

// Upsert adds a contact or fills in the blank fields of the existing one.
func (s *Service) Upsert(ctx context.Context, email string, f domain.ContactFields) (*domain.Contact, bool, error) {
	if err := s.authz.IsPermitted(ctx, auth.ActionContactWrite); err != nil {
		return nil, false, err
	}
	c, created, err := s.store.UpsertByEmail(ctx, email, f)
	if err != nil {
		return nil, false, err
	}
	s.audit.Record(ctx, audit.NewEvent(ctx, "contact.upsert", "contact", c.ID,
		map[string]any{"created": created}))
	return c, created, nil
}

// UpdateFields holds explicit edits. Nil fields are not applied; non-nil
// fields overwrite the stored value, blank included.
type UpdateFields struct {
	Email       *string   `json:"email"`
	Name        *string   `json:"name"`
	Phone       *string   `json:"phone"`
	CountryCode *string   `json:"country_code"`
	Company     *string   `json:"company"`
	Source      *string   `json:"source"`
	Tags        *[]string `json:"tags"`
}

// Update applies explicit field edits to a contact.
func (s *Service) Update(ctx context.Context, id string, u UpdateFields) (*domain.Contact, error) {
	if err := s.authz.IsPermitted(ctx, auth.ActionContactWrite); err != nil {
		return nil, err
	}
	var email string
	if u.Email != nil {
		email = domain.NormalizeEmail(*u.Email)
		if !domain.ValidEmail(email) {
			return nil, fmt.Errorf("%w: email %q", ErrInvalidInput, email)
		}
		if other, err := s.repo.GetByEmail(ctx, email); err == nil && other.ID != id {
			return nil, ErrDuplicateEmail
		} else if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}

	c, err := s.repo.Modify(ctx, id, func(c *domain.Contact) (bool, error) {
		if email != "" {
			c.Email = email
		}
		set(&c.Name, u.Name)
		set(&c.Phone, u.Phone)
		set(&c.CountryCode, u.CountryCode)
		set(&c.Company, u.Company)
		set(&c.Source, u.Source)
		if u.Tags != nil {
			c.Tags = domain.MergeTags(nil, *u.Tags)
		}
		c.UpdatedAt = s.now().UTC()
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.NewEvent(ctx, "contact.update", "contact", c.ID, nil))
	return c, nil
}

// Delete removes a contact after unlinking its segment memberships and
// campaign recipient rows.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.authz.IsPermitted(ctx, auth.ActionContactDelete); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.NewEvent(ctx, "contact.delete", "contact", id, nil))
	return nil
}

// SetStatus moves a contact to another pipeline stage and notes the change
// on its timeline.
func (s *Service) SetStatus(ctx context.Context, id string, status domain.ContactStatus) (*domain.Contact, error) {
	if err := s.authz.IsPermitted(ctx, auth.ActionContactWrite); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: status %q", ErrInvalidInput, status)
	}
	var prev domain.ContactStatus
	c, err := s.repo.Modify(ctx, id, func(c *domain.Contact) (bool, error) {
		prev = c.Status
		if c.Status == status {
			return false, nil
		}
		c.Status = status
		c.UpdatedAt = s.now().UTC()
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if prev == status {
		return c, nil
	}

	s.appendActivity(ctx, c.ID, domain.NotePayload{
		Text: fmt.Sprintf("Status changed from %s to %s", prev, status),
	})
	s.audit.Record(ctx, audit.NewEvent(ctx, "contact.status", "contact", c.ID,
		map[string]any{"from": prev, "to": status}))
	return c, nil
}

// SetFlags sets the do-not-contact and unsubscribed flags. Unlike upsert,
// an explicit call may also clear them.
func (s *Service) SetFlags(ctx context.Context, id string, doNotContact, unsubscribed bool) (*domain.Contact, error) {
	if err := s.authz.IsPermitted(ctx, auth.ActionContactWrite); err != nil {
		return nil, err
	}
	c, err := s.repo.Modify(ctx, id, func(c *domain.Contact) (bool, error) {
		c.DoNotContact = doNotContact
		c.Unsubscribed = unsubscribed
		c.UpdatedAt = s.now().UTC()
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.NewEvent(ctx, "contact.flags", "contact", c.ID,
		map[string]any{"do_not_contact": doNotContact, "unsubscribed": unsubscribed}))
	return c, nil
}

// Lead is a form submission from the marketing site.
type Lead struct {
	Form    string            `json:"form"`
	Email   string            `json:"email"`
	Name    string            `json:"name"`
	Phone   string            `json:"phone"`
	Company string            `json:"company"`
	Fields  map[string]string `json:"fields"`
}

// ConvertLead turns a site form submission into a contact. The submission
// is recorded on the contact's timeline whether the contact is new or not.
func (s *Service) ConvertLead(ctx context.Context, lead Lead) (*domain.Contact, bool, error) {
	if err := s.authz.IsPermitted(ctx, auth.ActionContactWrite); err != nil {
		return nil, false, err
	}
	form := strings.TrimSpace(lead.Form)
	if form == "" {
		form = "contact"
	}
	c, created, err := s.store.UpsertByEmail(ctx, lead.Email, domain.ContactFields{
		Name:    lead.Name,
		Phone:   lead.Phone,
		Company: lead.Company,
		Source:  LeadSource,
	})
	if err != nil {
		return nil, false, err
	}

	s.appendActivity(ctx, c.ID, domain.FormSubmissionPayload{Form: form, Fields: lead.Fields})
	s.audit.Record(ctx, audit.NewEvent(ctx, "contact.lead", "contact", c.ID,
		map[string]any{"form": form, "created": created}))
	return c, created, nil
}

// appendActivity is best effort: the contact mutation has already happened.
func (s *Service) appendActivity(ctx context.Context, contactID string, p domain.ActivityPayload) {
	if s.activities == nil {
		return
	}
	a := domain.NewActivity(contactID, p)
	a.ID = uuid.New().String()
	a.Actor = auth.Actor(ctx)
	a.CreatedAt = s.now().UTC()
	if err := s.activities.Append(ctx, a); err != nil {
		logger.Warn("contact: append activity failed", "contact_id", contactID,
			"type", string(a.Kind), "error", err.Error())
	}
}
