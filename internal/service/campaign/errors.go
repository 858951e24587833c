package campaign

import "errors"

// Sentinel errors for the campaign engine.
var (
	ErrNotFound          = errors.New("campaign not found")
	ErrTemplateNotFound  = errors.New("template not found")
	ErrCampaignCompleted = errors.New("campaign is completed")
	ErrInvalidInput      = errors.New("invalid campaign input")
	ErrDispatchBusy      = errors.New("another batch is being dispatched")
)

// ExcludedReason is recorded on recipients skipped because the contact is
// flagged do-not-contact or unsubscribed.
const ExcludedReason = "excluded"
