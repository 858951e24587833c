package contact

import (
	"context"

	"github.com/ignite/construction-crm/internal/domain"
)

// Repository defines the data access contract for contacts.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single contact. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Contact, error)

	// GetByEmail looks a contact up by normalized email. Returns ErrNotFound
	// if no contact has that email.
	GetByEmail(ctx context.Context, email string) (*domain.Contact, error)

	// GetMany returns the contacts that exist among ids. Unknown ids are
	// skipped, not reported.
	GetMany(ctx context.Context, ids []string) ([]domain.Contact, error)

	// List returns contacts matching the filter, ordered by created_at DESC,
	// together with the total number of matches.
	List(ctx context.Context, filter ListFilter) ([]domain.Contact, int, error)

	// Create inserts a new contact. Returns ErrDuplicateEmail if the email is
	// already taken.
	Create(ctx context.Context, c *domain.Contact) error

	// Modify loads the contact, applies fn and writes the result while
	// holding the row, so concurrent writers cannot lose each other's
	// changes. fn reports whether it changed anything; nothing is written
	// otherwise. Returns ErrNotFound if the contact doesn't exist and
	// ErrDuplicateEmail if fn moved it onto a taken email.
	Modify(ctx context.Context, id string, fn func(c *domain.Contact) (bool, error)) (*domain.Contact, error)

	// MergeByEmail inserts c, or when a contact with c's email exists,
	// applies merge to the stored row and writes it back while holding it.
	// created reports an insert.
	MergeByEmail(ctx context.Context, c *domain.Contact, merge func(existing *domain.Contact) bool) (*domain.Contact, bool, error)

	// Delete removes the contact's segment memberships and campaign
	// recipient rows, then the contact itself, in one transaction.
	Delete(ctx context.Context, id string) error
}

// ListFilter controls pagination and filtering for contact lists.
type ListFilter struct {
	Status    domain.ContactStatus
	SegmentID string
	Search    string // matched against email, name and company
	Limit     int
	Offset    int
}

// ActivityAppender persists timeline entries. activity.Repository
// satisfies it.
type ActivityAppender interface {
	Append(ctx context.Context, a *domain.Activity) error
}
