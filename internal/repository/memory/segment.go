package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/ignite/construction-crm/internal/domain"
	"github.com/ignite/construction-crm/internal/service/segment"
)

// SegmentRepo implements segment.Repository.
type SegmentRepo struct{ db *DB }

func NewSegmentRepo(db *DB) *SegmentRepo { return &SegmentRepo{db: db} }

func (r *SegmentRepo) withCount(s *domain.Segment) domain.Segment {
	cp := *s
	cp.MemberCount = len(r.db.members[s.ID])
	return cp
}

func (r *SegmentRepo) Get(_ context.Context, id string) (*domain.Segment, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	s, ok := r.db.segments[id]
	if !ok {
		return nil, segment.ErrNotFound
	}
	cp := r.withCount(s)
	return &cp, nil
}

func (r *SegmentRepo) List(_ context.Context) ([]domain.Segment, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := make([]domain.Segment, 0, len(r.db.segments))
	for _, s := range r.db.segments {
		out = append(out, r.withCount(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *SegmentRepo) Create(_ context.Context, s *domain.Segment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cp := *s
	cp.MemberCount = 0
	r.db.segments[s.ID] = &cp
	return nil
}

func (r *SegmentRepo) Update(_ context.Context, s *domain.Segment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	existing, ok := r.db.segments[s.ID]
	if !ok {
		return segment.ErrNotFound
	}
	existing.Name = s.Name
	existing.Color = s.Color
	existing.UpdatedAt = s.UpdatedAt
	return nil
}

func (r *SegmentRepo) Delete(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.segments[id]; !ok {
		return segment.ErrNotFound
	}
	delete(r.db.members, id)
	delete(r.db.segments, id)
	return nil
}

// checkLinks must be called with the write lock held.
func (r *SegmentRepo) checkLinks(contactID string, segmentIDs []string) error {
	if _, ok := r.db.contacts[contactID]; !ok {
		return fmt.Errorf("contact %s: %w", contactID, segment.ErrNotFound)
	}
	for _, id := range segmentIDs {
		if _, ok := r.db.segments[id]; !ok {
			return fmt.Errorf("segment %s: %w", id, segment.ErrNotFound)
		}
	}
	return nil
}

func (r *SegmentRepo) link(contactID, segmentID string) {
	m, ok := r.db.members[segmentID]
	if !ok {
		m = make(map[string]bool)
		r.db.members[segmentID] = m
	}
	m[contactID] = true
}

func (r *SegmentRepo) SetMembership(_ context.Context, contactID string, segmentIDs []string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.checkLinks(contactID, segmentIDs); err != nil {
		return err
	}
	for _, m := range r.db.members {
		delete(m, contactID)
	}
	for _, id := range segmentIDs {
		r.link(contactID, id)
	}
	return nil
}

func (r *SegmentRepo) AddMemberships(_ context.Context, contactID string, segmentIDs []string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.checkLinks(contactID, segmentIDs); err != nil {
		return err
	}
	for _, id := range segmentIDs {
		r.link(contactID, id)
	}
	return nil
}

func (r *SegmentRepo) RemoveMemberships(_ context.Context, contactID string, segmentIDs []string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.contacts[contactID]; !ok {
		return fmt.Errorf("contact %s: %w", contactID, segment.ErrNotFound)
	}
	for _, id := range segmentIDs {
		delete(r.db.members[id], contactID)
	}
	return nil
}

func (r *SegmentRepo) Members(_ context.Context, segmentID string) ([]string, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := make([]string, 0, len(r.db.members[segmentID]))
	for id := range r.db.members[segmentID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (r *SegmentRepo) SegmentsOf(_ context.Context, contactID string) ([]domain.Segment, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := []domain.Segment{}
	for id, m := range r.db.members {
		if m[contactID] {
			if s, ok := r.db.segments[id]; ok {
				out = append(out, r.withCount(s))
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
