package campaign

import (
	"context"
	"time"

	"github.com/ignite/construction-crm/internal/domain"
)

// Repository defines the data access contract for campaigns and their
// recipients. Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single campaign. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Campaign, error)

	// List returns campaigns matching the filter, ordered by created_at DESC.
	List(ctx context.Context, filter ListFilter) ([]domain.Campaign, int, error)

	// Create inserts the campaign and a pending recipient per contact in one
	// transaction. Returns the number of recipients inserted.
	Create(ctx context.Context, c *domain.Campaign, contactIDs []string) (int, error)

	// Delete removes the campaign's recipient rows and then the campaign.
	Delete(ctx context.Context, id string) error

	// UpdateStatus sets the campaign status. started_at is stamped on the
	// first move to sending and completed_at on completion.
	UpdateStatus(ctx context.Context, id string, status domain.CampaignStatus, at time.Time) error

	// InsertRecipients enrolls contacts as pending recipients, ignoring
	// contacts already enrolled. Returns the number of rows inserted.
	InsertRecipients(ctx context.Context, campaignID string, contactIDs []string) (int, error)

	// ClaimPending atomically claims up to limit unclaimed pending
	// recipients, oldest first, stamping them with at. A claim older than
	// lease is treated as abandoned and may be claimed again. Concurrent
	// callers never receive the same recipient.
	ClaimPending(ctx context.Context, campaignID string, limit int, at time.Time, lease time.Duration) ([]domain.CampaignRecipient, error)

	// ReleaseClaims returns claimed recipients that were not dispatched to
	// the pool.
	ReleaseClaims(ctx context.Context, recipientIDs []string) error

	// MarkSent moves a pending recipient to sent. Returns false if the
	// recipient was no longer pending.
	MarkSent(ctx context.Context, recipientID string, at time.Time) (bool, error)

	// MarkBounced moves a pending recipient to bounced with the reason.
	// Returns false if the recipient was no longer pending.
	MarkBounced(ctx context.Context, recipientID, reason string) (bool, error)

	// CountPending counts pending recipients, claimed or not.
	CountPending(ctx context.Context, campaignID string) (int, error)
	Stats(ctx context.Context, campaignID string) (domain.CampaignStats, error)

	// Recipients returns every recipient of the campaign, oldest first.
	Recipients(ctx context.Context, campaignID string) ([]domain.CampaignRecipient, error)
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	Status domain.CampaignStatus
	Limit  int
	Offset int
}

// ContactReader resolves recipients' contacts. contact.Repository
// satisfies it.
type ContactReader interface {
	GetMany(ctx context.Context, ids []string) ([]domain.Contact, error)
}

// TemplateReader loads a campaign's template. template.Repository
// satisfies it.
type TemplateReader interface {
	Get(ctx context.Context, id string) (*domain.EmailTemplate, error)
}

// ActivityAppender records email_sent activities. activity.Repository
// satisfies it.
type ActivityAppender interface {
	Append(ctx context.Context, a *domain.Activity) error
}
