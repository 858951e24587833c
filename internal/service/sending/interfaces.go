// Package sending defines the email transport boundary of the CRM core.
//
// The core never speaks SMTP itself: a rendered Message is handed to a
// Sender, which reports success or failure. SESSender delivers through AWS
// SES v2; LogSender only logs and is meant for development.
package sending

import (
	"context"
)

// Message is a fully rendered email ready for the transport.
type Message struct {
	To          string `json:"to"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	CampaignID  string `json:"campaign_id,omitempty"`
	RecipientID string `json:"recipient_id,omitempty"`
}

// Sender sends a single email. A nil error means the transport accepted the
// message. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}
