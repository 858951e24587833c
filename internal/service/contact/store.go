package contact

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/construction-crm/internal/domain"
)

// Store is the unchecked add-or-update core of the contact store. It performs
// no authorization; callers that orchestrate many upserts per request (the
// import pipeline) check permission once and then call the store directly.
type Store struct {
	repo Repository
	now  func() time.Time
}

// NewStore creates a store backed by the given repository.
func NewStore(repo Repository) *Store {
	return &Store{repo: repo, now: time.Now}
}

// UpsertByEmail adds a contact or fills the blank fields of the existing one.
// The email is trimmed and lowercased before lookup. Incoming blank fields
// never overwrite stored values. created reports whether a new contact was
// inserted.
func (s *Store) UpsertByEmail(ctx context.Context, email string, f domain.ContactFields) (*domain.Contact, bool, error) {
	email = domain.NormalizeEmail(email)
	if !domain.ValidEmail(email) {
		return nil, false, fmt.Errorf("%w: email %q", ErrInvalidInput, email)
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, false, fmt.Errorf("%w: status %q", ErrInvalidInput, f.Status)
	}

	now := s.now().UTC()
	c := f.NewContact(email)
	c.ID = uuid.New().String()
	c.CreatedAt = now
	c.UpdatedAt = now

	// merge is applied by the repository to the locked row.
	c, created, err := s.repo.MergeByEmail(ctx, c, func(existing *domain.Contact) bool {
		if !f.FillBlanks(existing) {
			return false
		}
		existing.UpdatedAt = now
		return true
	})
	if err != nil {
		return nil, false, fmt.Errorf("upsert contact: %w", err)
	}
	return c, created, nil
}
