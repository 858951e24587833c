package domain

import (
	"regexp"
	"time"
)

// DefaultSegmentColor is used when a segment is created without a color.
const DefaultSegmentColor = "#6b7280"

var colorRegex = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ValidColor reports whether c is a #rrggbb hex color.
func ValidColor(c string) bool {
	return colorRegex.MatchString(c)
}

// Segment is a named, colored group of contacts.
type Segment struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Color       string    `json:"color" db:"color"`
	MemberCount int       `json:"member_count" db:"member_count"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// ListViewState records when a user last opened a list view, e.g. the
// contacts inbox, so the UI can highlight what is new since then.
type ListViewState struct {
	UserID       string    `json:"user_id" db:"user_id"`
	View         string    `json:"view" db:"view"`
	LastViewedAt time.Time `json:"last_viewed_at" db:"last_viewed_at"`
}
