// Package memory provides in-memory implementations of every service
// repository. All repositories created from one DB share state, so
// cross-entity rules (unlinking memberships on contact delete, recipient
// cascade on campaign delete) behave as they do in Postgres. Used by tests
// and by the server's development mode.
package memory

import (
	"sync"
	"time"

	"github.com/ignite/construction-crm/internal/domain"
)

type recipientRow struct {
	domain.CampaignRecipient
	seq       int64
	claimedAt *time.Time
}

type activityRow struct {
	domain.Activity
	seq int64
}

type pairKey [2]string

// DB is the shared in-memory store. It is safe for concurrent use.
type DB struct {
	mu sync.RWMutex

	contacts map[string]*domain.Contact
	byEmail  map[string]string // normalized email -> contact id

	segments map[string]*domain.Segment
	members  map[string]map[string]bool // segment id -> contact ids

	templates map[string]*domain.EmailTemplate

	campaigns     map[string]*domain.Campaign
	recipients    map[string]*recipientRow
	recipientKeys map[pairKey]string // (campaign, contact) -> recipient id

	activities map[string][]activityRow // contact id -> timeline
	views      map[pairKey]domain.ListViewState

	seq int64
	now func() time.Time
}

// NewDB creates an empty store.
func NewDB() *DB {
	return &DB{
		contacts:      make(map[string]*domain.Contact),
		byEmail:       make(map[string]string),
		segments:      make(map[string]*domain.Segment),
		members:       make(map[string]map[string]bool),
		templates:     make(map[string]*domain.EmailTemplate),
		campaigns:     make(map[string]*domain.Campaign),
		recipients:    make(map[string]*recipientRow),
		recipientKeys: make(map[pairKey]string),
		activities:    make(map[string][]activityRow),
		views:         make(map[pairKey]domain.ListViewState),
		now:           time.Now,
	}
}

// SetClock overrides the store's clock, for tests that stage send history.
func (db *DB) SetClock(now func() time.Time) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.now = now
}

func (db *DB) nextSeq() int64 {
	db.seq++
	return db.seq
}

func copyContact(c *domain.Contact) *domain.Contact {
	cp := *c
	cp.Tags = append([]string{}, c.Tags...)
	return &cp
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
