package domain

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

// ContactStatus enumerates the sales pipeline stages a contact moves through.
type ContactStatus string

const (
	ContactNew         ContactStatus = "new"
	ContactContacted   ContactStatus = "contacted"
	ContactQualified   ContactStatus = "qualified"
	ContactProposal    ContactStatus = "proposal"
	ContactNegotiation ContactStatus = "negotiation"
	ContactConverted   ContactStatus = "converted"
	ContactDormant     ContactStatus = "dormant"
)

// Valid reports whether s is a known pipeline stage.
func (s ContactStatus) Valid() bool {
	switch s {
	case ContactNew, ContactContacted, ContactQualified, ContactProposal,
		ContactNegotiation, ContactConverted, ContactDormant:
		return true
	}
	return false
}

// Contact is a prospect or client tracked by the CRM. Identity is the
// normalized email address.
type Contact struct {
	ID           string        `json:"id" db:"id"`
	Email        string        `json:"email" db:"email"`
	Name         string        `json:"name" db:"name"`
	Phone        string        `json:"phone" db:"phone"`
	CountryCode  string        `json:"country_code" db:"country_code"`
	Company      string        `json:"company" db:"company"`
	Source       string        `json:"source" db:"source"`
	Status       ContactStatus `json:"status" db:"status"`
	Tags         []string      `json:"tags" db:"tags"`
	DoNotContact bool          `json:"do_not_contact" db:"do_not_contact"`
	Unsubscribed bool          `json:"unsubscribed" db:"unsubscribed"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
}

// Excluded returns true if the contact must not receive campaign mail.
func (c *Contact) Excluded() bool {
	return c.DoNotContact || c.Unsubscribed
}

// FirstName returns the part of the name before the first space.
func (c *Contact) FirstName() string {
	name := strings.TrimSpace(c.Name)
	if i := strings.IndexByte(name, ' '); i >= 0 {
		return name[:i]
	}
	return name
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidEmail reports whether email passes a basic syntax check.
func ValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// NormalizeEmail trims and lowercases an email address. All contact lookups
// go through this so "Jane@X.com " and "jane@x.com" are the same identity.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ContactFields carries incoming contact data for add-or-update flows.
// Blank values mean "not provided".
type ContactFields struct {
	Name         string        `json:"name"`
	Phone        string        `json:"phone"`
	CountryCode  string        `json:"country_code"`
	Company      string        `json:"company"`
	Source       string        `json:"source"`
	Status       ContactStatus `json:"status"`
	Tags         []string      `json:"tags"`
	DoNotContact bool          `json:"do_not_contact"`
	Unsubscribed bool          `json:"unsubscribed"`
}

// FillBlanks merges f into c without overwriting: a field of c is only
// written when it is currently blank and f carries a value. Tags are merged
// as a set union and flags can only be raised. Returns true if c changed.
func (f ContactFields) FillBlanks(c *Contact) bool {
	changed := false
	fill := func(dst *string, src string) {
		src = strings.TrimSpace(src)
		if strings.TrimSpace(*dst) == "" && src != "" {
			*dst = src
			changed = true
		}
	}
	fill(&c.Name, f.Name)
	fill(&c.Phone, f.Phone)
	fill(&c.CountryCode, f.CountryCode)
	fill(&c.Company, f.Company)
	fill(&c.Source, f.Source)

	if c.Status == "" && f.Status != "" {
		c.Status = f.Status
		changed = true
	}
	if merged := MergeTags(c.Tags, f.Tags); len(merged) != len(c.Tags) {
		c.Tags = merged
		changed = true
	}
	if f.DoNotContact && !c.DoNotContact {
		c.DoNotContact = true
		changed = true
	}
	if f.Unsubscribed && !c.Unsubscribed {
		c.Unsubscribed = true
		changed = true
	}
	return changed
}

// NewContact builds a contact from incoming fields. Status defaults to new.
func (f ContactFields) NewContact(email string) *Contact {
	c := &Contact{Email: NormalizeEmail(email)}
	f.FillBlanks(c)
	if c.Status == "" {
		c.Status = ContactNew
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return c
}

// MergeTags returns the sorted union of two tag sets. Tags are trimmed and
// compared case-insensitively; the first spelling seen wins.
func MergeTags(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing)+len(incoming))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, list := range [][]string{existing, incoming} {
		for _, t := range list {
			t = strings.TrimSpace(t)
			k := strings.ToLower(t)
			if t == "" || seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}
