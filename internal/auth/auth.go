// Package auth holds the authorization boundary of the CRM core.
//
// Authentication and sessions belong to the external identity provider that
// fronts the site; by the time a request reaches the core it carries an
// Identity (user id + role). Every mutating service operation asks an
// Authorizer once, before any core logic runs.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrForbidden is returned when the caller's role does not grant an action.
var ErrForbidden = errors.New("forbidden")

// Action names a permission-checked operation.
type Action string

const (
	ActionContactWrite  Action = "contact:write"
	ActionContactDelete Action = "contact:delete"
	ActionContactImport Action = "contact:import"
	ActionActivityWrite Action = "activity:write"
	ActionSegmentWrite  Action = "segment:write"
	ActionTemplateWrite Action = "template:write"
	ActionCampaignWrite Action = "campaign:write"
	ActionCampaignSend  Action = "campaign:send"
)

// Wildcard grants every action when present in a role's action list.
const Wildcard = "*"

// Identity is the authenticated caller as asserted by the identity provider.
type Identity struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type identityKey struct{}

// WithIdentity returns a context carrying the caller identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the caller identity, if any.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Actor returns the user id for audit and activity records. System-initiated
// work has no identity and reports "system".
func Actor(ctx context.Context) string {
	if id, ok := IdentityFrom(ctx); ok && id.UserID != "" {
		return id.UserID
	}
	return "system"
}

// Authorizer decides whether the caller in ctx may perform an action.
// It returns nil when permitted and an error wrapping ErrForbidden otherwise.
type Authorizer interface {
	IsPermitted(ctx context.Context, action Action) error
}

// RoleAuthorizer grants actions by role. It is immutable after construction
// and safe for concurrent use.
type RoleAuthorizer struct {
	grants map[string]map[Action]bool
	all    map[string]bool
}

// NewRoleAuthorizer builds an authorizer from role → action names, e.g.
// {"admin": ["*"], "sales": ["contact:write", "activity:write"]}.
func NewRoleAuthorizer(roles map[string][]string) *RoleAuthorizer {
	a := &RoleAuthorizer{
		grants: make(map[string]map[Action]bool, len(roles)),
		all:    make(map[string]bool),
	}
	for role, actions := range roles {
		role = strings.ToLower(role)
		set := make(map[Action]bool, len(actions))
		for _, act := range actions {
			if act == Wildcard {
				a.all[role] = true
				continue
			}
			set[Action(act)] = true
		}
		a.grants[role] = set
	}
	return a
}

// IsPermitted implements Authorizer.
func (a *RoleAuthorizer) IsPermitted(ctx context.Context, action Action) error {
	id, ok := IdentityFrom(ctx)
	if !ok || id.Role == "" {
		return fmt.Errorf("%w: no identity for %s", ErrForbidden, action)
	}
	role := strings.ToLower(id.Role)
	if a.all[role] || a.grants[role][action] {
		return nil
	}
	return fmt.Errorf("%w: role %q cannot %s", ErrForbidden, id.Role, action)
}

// AllowAll permits everything. Used for system jobs and tests.
type AllowAll struct{}

func (AllowAll) IsPermitted(context.Context, Action) error { return nil }

// Header names set by the identity provider's reverse proxy.
const (
	HeaderUserID = "X-User-ID"
	HeaderRole   = "X-User-Role"
)

// IdentityMiddleware lifts the identity headers asserted by the upstream
// identity provider into the request context. Requests without a role are
// passed through unauthenticated; the authorizer rejects their mutations.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := strings.TrimSpace(r.Header.Get(HeaderRole))
		if role != "" {
			id := Identity{UserID: strings.TrimSpace(r.Header.Get(HeaderUserID)), Role: role}
			r = r.WithContext(WithIdentity(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}
