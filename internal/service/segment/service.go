package segment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/construction-crm/internal/audit"
	"github.com/ignite/construction-crm/internal/auth"
	"github.com/ignite/construction-crm/internal/domain"
	"github.com/ignite/construction-crm/internal/pkg/logger"
)

// Service implements segment business logic. It is safe for concurrent use.
type Service struct {
	repo  Repository
	authz auth.Authorizer
	audit audit.Sink
	now   func() time.Time
}

// NewService creates a segment service. A nil authorizer permits everything
// and a nil sink discards audit events.
func NewService(repo Repository, authz auth.Authorizer, sink audit.Sink) *Service {
	if authz == nil {
		authz = auth.AllowAll{}
	}
	if sink == nil {
		sink = audit.Nop{}
	}
	return &Service{repo: repo, authz: authz, audit: sink, now: time.Now}
}

// Input holds the editable segment fields.
type Input struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func (in Input) normalize() (Input, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Color = strings.TrimSpace(in.Color)
	if in.Name == "" {
		return in, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.Color == "" {
		in.Color = domain.DefaultSegmentColor
	}
	if !domain.ValidColor(in.Color) {
		return in, fmt.Errorf("%w: color %q is not #rrggbb", ErrInvalidInput, in.Color)
	}
	in.Color = strings.ToLower(in.Color)
	return in, nil
}

// Get returns a single segment.
func (s *Service) Get(ctx context.Context, id string) (*domain.Segment, error) {
	return s.repo.Get(ctx, id)
}

// List returns every segment with its member count.
func (s *Service) List(ctx context.Context) ([]domain.Segment, error) {
	return s.repo.List(ctx)
}

// Members returns the contact ids in a segment.
func (s *Service) Members(ctx context.Context, segmentID string) ([]string, error) {
	if _, err := s.repo.Get(ctx, segmentID); err != nil {
		return nil, err
	}
	return s.repo.Members(ctx, segmentID)
}

// SegmentsOf returns the segments a contact belongs to.
func (s *Service) SegmentsOf(ctx context.Context, contactID string) ([]domain.Segment, error) {
	return s.repo.SegmentsOf(ctx, contactID)
}

// Create validates and persists a new segment.
func (s *Service) Create(ctx context.Context, in Input) (*domain.Segment, error) {
	if err := s.authz.IsPermitted(ctx, auth.ActionSegmentWrite); err != nil {
		return nil, err
	}
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	seg := &domain.Segment{
		ID:        uuid.New().String(),
		Name:      in.Name,
		Color:     in.Color,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, seg); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.NewEvent(ctx, "segment.create", "segment", seg.ID, nil))
	return seg, nil
}

// Update renames or recolors a segment.
func (s *Service) Update(ctx context.Context, id string, in Input) (*domain.Segment, error) {
	if err := s.authz.IsPermitted(ctx, auth.ActionSegmentWrite); err != nil {
		return nil, err
	}
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	seg, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	seg.Name = in.Name
	seg.Color = in.Color
	seg.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, seg); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.NewEvent(ctx, "segment.update", "segment", seg.ID, nil))
	return seg, nil
}

// Delete removes a segment and its membership rows. Member contacts are
// left intact.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.authz.IsPermitted(ctx, auth.ActionSegmentWrite); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.NewEvent(ctx, "segment.delete", "segment", id, nil))
	return nil
}

// SetMembership replaces the contact's full membership set. Calling it
// twice with the same ids leaves the same state.
func (s *Service) SetMembership(ctx context.Context, contactID string, segmentIDs []string) error {
	if err := s.authz.IsPermitted(ctx, auth.ActionSegmentWrite); err != nil {
		return err
	}
	if err := s.repo.SetMembership(ctx, contactID, dedupe(segmentIDs)); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.NewEvent(ctx, "segment.set_membership", "contact", contactID,
		map[string]any{"segment_ids": segmentIDs}))
	return nil
}

// BulkResult summarizes a bulk membership change.
type BulkResult struct {
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors"`
}

// AddMany links every contact to every segment. Contacts are processed
// independently.
func (s *Service) AddMany(ctx context.Context, contactIDs, segmentIDs []string) (*BulkResult, error) {
	return s.bulk(ctx, "segment.bulk_add", contactIDs, segmentIDs, s.repo.AddMemberships)
}

// RemoveMany unlinks every contact from every segment. Contacts are
// processed independently.
func (s *Service) RemoveMany(ctx context.Context, contactIDs, segmentIDs []string) (*BulkResult, error) {
	return s.bulk(ctx, "segment.bulk_remove", contactIDs, segmentIDs, s.repo.RemoveMemberships)
}

func (s *Service) bulk(ctx context.Context, action string, contactIDs, segmentIDs []string,
	apply func(context.Context, string, []string) error) (*BulkResult, error) {
	if err := s.authz.IsPermitted(ctx, auth.ActionSegmentWrite); err != nil {
		return nil, err
	}
	segmentIDs = dedupe(segmentIDs)
	if len(segmentIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one segment id is required", ErrInvalidInput)
	}

	res := &BulkResult{Errors: []string{}}
	for _, id := range dedupe(contactIDs) {
		if err := apply(ctx, id, segmentIDs); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("contact %s: %v", id, err))
			continue
		}
		res.Succeeded++
	}

	if res.Failed > 0 {
		logger.Warn("segment: bulk membership partially failed", "action", action,
			"succeeded", res.Succeeded, "failed", res.Failed)
	}
	s.audit.Record(ctx, audit.NewEvent(ctx, action, "segment", "", map[string]any{
		"segment_ids": segmentIDs, "succeeded": res.Succeeded, "failed": res.Failed,
	}))
	return res, nil
}

// dedupe drops blanks and repeats, keeping first-seen order.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
