// Package audit is the best-effort audit trail of the CRM core.
//
// Record is fire-and-forget: sinks never return errors and never block the
// operation that triggered them. Core correctness must not depend on an
// audit event being stored.
package audit

import (
	"context"
	"time"

	"github.com/ignite/construction-crm/internal/auth"
	"github.com/ignite/construction-crm/internal/pkg/logger"
)

// Event is one audited mutation.
type Event struct {
	Action     string         `json:"action"`
	Actor      string         `json:"actor"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	At         time.Time      `json:"at"`
}

// Sink receives audit events.
type Sink interface {
	Record(ctx context.Context, e Event)
}

// NewEvent stamps an event with the caller from ctx and the current time.
func NewEvent(ctx context.Context, action, entityType, entityID string, details map[string]any) Event {
	return Event{
		Action:     action,
		Actor:      auth.Actor(ctx),
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
		At:         time.Now().UTC(),
	}
}

// LogSink writes audit events to the structured logger.
type LogSink struct{}

func (LogSink) Record(_ context.Context, e Event) {
	logger.Info("audit", "action", e.Action, "actor", e.Actor,
		"entity_type", e.EntityType, "entity_id", e.EntityID)
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, Event) {}
