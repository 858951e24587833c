package template

import (
	"context"

	"github.com/ignite/construction-crm/internal/domain"
)

// Repository defines the data access contract for email templates.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single template. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.EmailTemplate, error)

	// List returns all templates ordered by name.
	List(ctx context.Context) ([]domain.EmailTemplate, error)

	Create(ctx context.Context, t *domain.EmailTemplate) error
	Update(ctx context.Context, t *domain.EmailTemplate) error

	// Delete removes a template. Returns ErrInUse if a campaign is bound to it.
	Delete(ctx context.Context, id string) error
}
