package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignSending   CampaignStatus = "sending"
	CampaignCompleted CampaignStatus = "completed"
)

// CampaignType classifies what a campaign is for. It carries no behavior.
type CampaignType string

const (
	CampaignNewsletter   CampaignType = "newsletter"
	CampaignPromotion    CampaignType = "promotion"
	CampaignFollowUp     CampaignType = "follow_up"
	CampaignAnnouncement CampaignType = "announcement"
)

// Valid reports whether t is a known campaign type.
func (t CampaignType) Valid() bool {
	switch t {
	case CampaignNewsletter, CampaignPromotion, CampaignFollowUp, CampaignAnnouncement:
		return true
	}
	return false
}

// Campaign binds one email template to a set of recipients.
type Campaign struct {
	ID         string         `json:"id" db:"id"`
	Name       string         `json:"name" db:"name"`
	Type       CampaignType   `json:"type" db:"campaign_type"`
	TemplateID string         `json:"template_id" db:"template_id"`
	Status     CampaignStatus `json:"status" db:"status"`

	StartedAt   *time.Time `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignCompleted
}

// RecipientStatus enumerates the send state of one campaign recipient.
// A recipient leaves pending exactly once.
type RecipientStatus string

const (
	RecipientPending RecipientStatus = "pending"
	RecipientSent    RecipientStatus = "sent"
	RecipientBounced RecipientStatus = "bounced"
)

// CampaignRecipient is the per-contact send state within a campaign.
type CampaignRecipient struct {
	ID         string          `json:"id" db:"id"`
	CampaignID string          `json:"campaign_id" db:"campaign_id"`
	ContactID  string          `json:"contact_id" db:"contact_id"`
	Status     RecipientStatus `json:"status" db:"status"`
	SentAt     *time.Time      `json:"sent_at" db:"sent_at"`
	Error      string          `json:"error,omitempty" db:"error"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// CampaignStats counts recipients by send state.
type CampaignStats struct {
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
	Bounced int `json:"bounced"`
}

// Total returns the number of enrolled recipients.
func (s CampaignStats) Total() int { return s.Pending + s.Sent + s.Bounced }

// EmailTemplate holds a subject and body with {{variable}} placeholders.
type EmailTemplate struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Subject   string    `json:"subject" db:"subject"`
	Body      string    `json:"body" db:"body"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
