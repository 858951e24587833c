package segment

import (
	"context"

	"github.com/ignite/construction-crm/internal/domain"
)

// Repository defines the data access contract for segments and membership.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a segment with its member count. Returns ErrNotFound if it
	// doesn't exist.
	Get(ctx context.Context, id string) (*domain.Segment, error)

	// List returns all segments ordered by name, with member counts.
	List(ctx context.Context) ([]domain.Segment, error)

	Create(ctx context.Context, s *domain.Segment) error
	Update(ctx context.Context, s *domain.Segment) error

	// Delete removes the segment's membership rows and then the segment.
	Delete(ctx context.Context, id string) error

	// SetMembership replaces the contact's membership set in one transaction.
	// Returns ErrNotFound if the contact or any segment doesn't exist.
	SetMembership(ctx context.Context, contactID string, segmentIDs []string) error

	// AddMemberships links the contact to the segments, ignoring links that
	// already exist. Returns ErrNotFound if the contact or any segment
	// doesn't exist.
	AddMemberships(ctx context.Context, contactID string, segmentIDs []string) error

	// RemoveMemberships unlinks the contact from the segments. Returns
	// ErrNotFound if the contact doesn't exist.
	RemoveMemberships(ctx context.Context, contactID string, segmentIDs []string) error

	// Members returns the ids of the segment's member contacts.
	Members(ctx context.Context, segmentID string) ([]string, error)

	// SegmentsOf returns the segments the contact belongs to.
	SegmentsOf(ctx context.Context, contactID string) ([]domain.Segment, error)
}
