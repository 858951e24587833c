package template

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/construction-crm/internal/audit"
	"github.com/ignite/construction-crm/internal/auth"
	"github.com/ignite/construction-crm/internal/domain"
)

// Service implements email template CRUD and preview.
type Service struct {
	repo     Repository
	renderer *Renderer
	authz    auth.Authorizer
	audit    audit.Sink
	now      func() time.Time
}

// NewService creates a template service. A nil renderer gets a fresh one.
func NewService(repo Repository, renderer *Renderer, authz auth.Authorizer, sink audit.Sink) *Service {
	if renderer == nil {
		renderer = NewRenderer()
	}
	if authz == nil {
		authz = auth.AllowAll{}
	}
	if sink == nil {
		sink = audit.Nop{}
	}
	return &Service{repo: repo, renderer: renderer, authz: authz, audit: sink, now: time.Now}
}

// Input holds the editable template fields.
type Input struct {
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (s *Service) validate(in Input) (Input, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Subject = strings.TrimSpace(in.Subject)
	if in.Name == "" {
		return in, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.Subject == "" {
		return in, fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}
	if err := s.renderer.Validate(in.Subject); err != nil {
		return in, fmt.Errorf("subject: %w", err)
	}
	if err := s.renderer.Validate(in.Body); err != nil {
		return in, fmt.Errorf("body: %w", err)
	}
	return in, nil
}

// Get returns a single template.
func (s *Service) Get(ctx context.Context, id string) (*domain.EmailTemplate, error) {
	return s.repo.Get(ctx, id)
}

// List returns every template.
func (s *Service) List(ctx context.Context) ([]domain.EmailTemplate, error) {
	return s.repo.List(ctx)
}

// Create validates and persists a new template.
func (s *Service) Create(ctx context.Context, in Input) (*domain.EmailTemplate, error) {
	if err := s.authz.IsPermitted(ctx, auth.ActionTemplateWrite); err != nil {
		return nil, err
	}
	in, err := s.validate(in)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	t := &domain.EmailTemplate{
		ID:        uuid.New().String(),
		Name:      in.Name,
		Subject:   in.Subject,
		Body:      in.Body,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.NewEvent(ctx, "template.create", "template", t.ID, nil))
	return t, nil
}

// Update replaces a template's name, subject and body.
func (s *Service) Update(ctx context.Context, id string, in Input) (*domain.EmailTemplate, error) {
	if err := s.authz.IsPermitted(ctx, auth.ActionTemplateWrite); err != nil {
		return nil, err
	}
	in, err := s.validate(in)
	if err != nil {
		return nil, err
	}
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Name, t.Subject, t.Body = in.Name, in.Subject, in.Body
	t.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.NewEvent(ctx, "template.update", "template", t.ID, nil))
	return t, nil
}

// Delete removes a template that no campaign is bound to.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.authz.IsPermitted(ctx, auth.ActionTemplateWrite); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.NewEvent(ctx, "template.delete", "template", id, nil))
	return nil
}

// Preview is a rendered subject and body.
type Preview struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Preview renders a stored template against a contact.
func (s *Service) Preview(ctx context.Context, templateID string, c *domain.Contact) (*Preview, error) {
	t, err := s.repo.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	subject, body, err := s.renderer.RenderMessage(t, c)
	if err != nil {
		return nil, err
	}
	return &Preview{Subject: subject, Body: body}, nil
}
