package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ActivityKind discriminates the payload of a contact activity.
type ActivityKind string

const (
	ActivityNote           ActivityKind = "note"
	ActivityEmailSent      ActivityKind = "email_sent"
	ActivityEmailReceived  ActivityKind = "email_received"
	ActivityFormSubmission ActivityKind = "form_submission"
	ActivityCall           ActivityKind = "call"
	ActivityMeeting        ActivityKind = "meeting"
)

// ErrInvalidActivity is returned when an activity's payload does not match
// its kind or is missing required content.
var ErrInvalidActivity = errors.New("invalid activity")

// ActivityPayload is implemented by every typed activity payload.
type ActivityPayload interface {
	Kind() ActivityKind
	Validate() error
}

// NotePayload is a free-text note written by a user.
type NotePayload struct {
	Text string `json:"text"`
}

func (NotePayload) Kind() ActivityKind { return ActivityNote }

func (p NotePayload) Validate() error {
	if strings.TrimSpace(p.Text) == "" {
		return fmt.Errorf("%w: note text is required", ErrInvalidActivity)
	}
	return nil
}

// EmailSentPayload records a campaign email handed to the transport.
type EmailSentPayload struct {
	CampaignID string `json:"campaign_id"`
	Subject    string `json:"subject"`
}

func (EmailSentPayload) Kind() ActivityKind { return ActivityEmailSent }

func (p EmailSentPayload) Validate() error {
	if p.Subject == "" {
		return fmt.Errorf("%w: email subject is required", ErrInvalidActivity)
	}
	return nil
}

// EmailReceivedPayload records an inbound email from the contact.
type EmailReceivedPayload struct {
	Subject string `json:"subject"`
	From    string `json:"from,omitempty"`
}

func (EmailReceivedPayload) Kind() ActivityKind { return ActivityEmailReceived }

func (p EmailReceivedPayload) Validate() error {
	if p.Subject == "" {
		return fmt.Errorf("%w: email subject is required", ErrInvalidActivity)
	}
	return nil
}

// FormSubmissionPayload records a website form submitted by the contact.
type FormSubmissionPayload struct {
	Form   string            `json:"form"`
	Fields map[string]string `json:"fields"`
}

func (FormSubmissionPayload) Kind() ActivityKind { return ActivityFormSubmission }

func (p FormSubmissionPayload) Validate() error {
	if p.Form == "" {
		return fmt.Errorf("%w: form name is required", ErrInvalidActivity)
	}
	return nil
}

// CallPayload records a phone call.
type CallPayload struct {
	Summary         string `json:"summary"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

func (CallPayload) Kind() ActivityKind { return ActivityCall }

func (p CallPayload) Validate() error {
	if p.DurationSeconds < 0 {
		return fmt.Errorf("%w: call duration cannot be negative", ErrInvalidActivity)
	}
	return nil
}

// MeetingPayload records a site visit or meeting.
type MeetingPayload struct {
	Summary     string     `json:"summary"`
	Location    string     `json:"location,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

func (MeetingPayload) Kind() ActivityKind { return ActivityMeeting }

func (p MeetingPayload) Validate() error { return nil }

// Activity is one append-only entry in a contact's timeline.
type Activity struct {
	ID        string          `json:"id"`
	ContactID string          `json:"contact_id"`
	Kind      ActivityKind    `json:"type"`
	Payload   ActivityPayload `json:"payload"`
	Actor     string          `json:"actor,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewActivity builds an activity whose kind is taken from the payload.
func NewActivity(contactID string, p ActivityPayload) *Activity {
	return &Activity{ContactID: contactID, Kind: p.Kind(), Payload: p}
}

// Validate checks that the payload is present, matches the kind and is
// internally valid.
func (a *Activity) Validate() error {
	if a.ContactID == "" {
		return fmt.Errorf("%w: contact id is required", ErrInvalidActivity)
	}
	if a.Payload == nil {
		return fmt.Errorf("%w: payload is required", ErrInvalidActivity)
	}
	if a.Payload.Kind() != a.Kind {
		return fmt.Errorf("%w: payload %s does not match type %s", ErrInvalidActivity, a.Payload.Kind(), a.Kind)
	}
	return a.Payload.Validate()
}

// DecodeActivityPayload decodes raw JSON into the payload variant for kind.
func DecodeActivityPayload(kind ActivityKind, raw []byte) (ActivityPayload, error) {
	var p ActivityPayload
	switch kind {
	case ActivityNote:
		p = &NotePayload{}
	case ActivityEmailSent:
		p = &EmailSentPayload{}
	case ActivityEmailReceived:
		p = &EmailReceivedPayload{}
	case ActivityFormSubmission:
		p = &FormSubmissionPayload{}
	case ActivityCall:
		p = &CallPayload{}
	case ActivityMeeting:
		p = &MeetingPayload{}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidActivity, kind)
	}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, fmt.Errorf("%w: decode %s payload: %v", ErrInvalidActivity, kind, err)
		}
	}
	return deref(p), nil
}

// deref stores payloads by value so type switches on Activity.Payload see
// NotePayload rather than *NotePayload.
func deref(p ActivityPayload) ActivityPayload {
	switch v := p.(type) {
	case *NotePayload:
		return *v
	case *EmailSentPayload:
		return *v
	case *EmailReceivedPayload:
		return *v
	case *FormSubmissionPayload:
		return *v
	case *CallPayload:
		return *v
	case *MeetingPayload:
		return *v
	}
	return p
}

// UnmarshalJSON decodes the payload using the "type" discriminator.
func (a *Activity) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID        string          `json:"id"`
		ContactID string          `json:"contact_id"`
		Kind      ActivityKind    `json:"type"`
		Payload   json.RawMessage `json:"payload"`
		Actor     string          `json:"actor"`
		CreatedAt time.Time       `json:"created_at"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	p, err := DecodeActivityPayload(wire.Kind, wire.Payload)
	if err != nil {
		return err
	}
	*a = Activity{
		ID:        wire.ID,
		ContactID: wire.ContactID,
		Kind:      wire.Kind,
		Payload:   p,
		Actor:     wire.Actor,
		CreatedAt: wire.CreatedAt,
	}
	return nil
}
