// Package activity is the append-only contact timeline.
package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/construction-crm/internal/audit"
	"github.com/ignite/construction-crm/internal/auth"
	"github.com/ignite/construction-crm/internal/domain"
)

// ErrContactNotFound is returned when appending to an unknown contact.
var ErrContactNotFound = errors.New("contact not found")

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 50

// Repository persists activities. Implementations must be safe for
// concurrent use.
type Repository interface {
	// Append stores an activity. Returns ErrContactNotFound if the contact
	// doesn't exist.
	Append(ctx context.Context, a *domain.Activity) error

	// List returns the contact's activities, newest first.
	List(ctx context.Context, contactID string, limit int) ([]domain.Activity, error)
}

// Service validates and records timeline entries.
type Service struct {
	repo  Repository
	authz auth.Authorizer
	audit audit.Sink
	now   func() time.Time
}

// NewService creates an activity service.
func NewService(repo Repository, authz auth.Authorizer, sink audit.Sink) *Service {
	if authz == nil {
		authz = auth.AllowAll{}
	}
	if sink == nil {
		sink = audit.Nop{}
	}
	return &Service{repo: repo, authz: authz, audit: sink, now: time.Now}
}

// Append records a typed activity on a contact's timeline.
func (s *Service) Append(ctx context.Context, contactID string, p domain.ActivityPayload) (*domain.Activity, error) {
	if err := s.authz.IsPermitted(ctx, auth.ActionActivityWrite); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: payload is required", domain.ErrInvalidActivity)
	}
	a := domain.NewActivity(contactID, p)
	if err := a.Validate(); err != nil {
		return nil, err
	}
	a.ID = uuid.New().String()
	a.Actor = auth.Actor(ctx)
	a.CreatedAt = s.now().UTC()
	if err := s.repo.Append(ctx, a); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.NewEvent(ctx, "activity.append", "contact", contactID,
		map[string]any{"type": a.Kind}))
	return a, nil
}

// List returns up to limit activities for a contact, newest first.
func (s *Service) List(ctx context.Context, contactID string, limit int) ([]domain.Activity, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.repo.List(ctx, contactID, limit)
}
