package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/ignite/construction-crm/internal/domain"
	"github.com/ignite/construction-crm/internal/service/contact"
)

// ContactRepo implements contact.Repository.
type ContactRepo struct{ db *DB }

func NewContactRepo(db *DB) *ContactRepo { return &ContactRepo{db: db} }

func (r *ContactRepo) Get(_ context.Context, id string) (*domain.Contact, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	c, ok := r.db.contacts[id]
	if !ok {
		return nil, contact.ErrNotFound
	}
	return copyContact(c), nil
}

func (r *ContactRepo) GetByEmail(_ context.Context, email string) (*domain.Contact, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	id, ok := r.db.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return nil, contact.ErrNotFound
	}
	return copyContact(r.db.contacts[id]), nil
}

func (r *ContactRepo) GetMany(_ context.Context, ids []string) ([]domain.Contact, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := make([]domain.Contact, 0, len(ids))
	for _, id := range ids {
		if c, ok := r.db.contacts[id]; ok {
			out = append(out, *copyContact(c))
		}
	}
	return out, nil
}

func (r *ContactRepo) List(_ context.Context, f contact.ListFilter) ([]domain.Contact, int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	search := strings.ToLower(f.Search)
	var out []domain.Contact
	for _, c := range r.db.contacts {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.SegmentID != "" && !r.db.members[f.SegmentID][c.ID] {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(c.Email+" "+c.Name+" "+c.Company), search) {
			continue
		}
		out = append(out, *copyContact(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, f.Limit, f.Offset), len(out), nil
}

func (r *ContactRepo) Create(_ context.Context, c *domain.Contact) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	email := domain.NormalizeEmail(c.Email)
	if _, taken := r.db.byEmail[email]; taken {
		return contact.ErrDuplicateEmail
	}
	cp := copyContact(c)
	cp.Email = email
	r.db.contacts[cp.ID] = cp
	r.db.byEmail[email] = cp.ID
	return nil
}

func (r *ContactRepo) Modify(_ context.Context, id string, fn func(c *domain.Contact) (bool, error)) (*domain.Contact, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	existing, ok := r.db.contacts[id]
	if !ok {
		return nil, contact.ErrNotFound
	}
	c := copyContact(existing)
	changed, err := fn(c)
	if err != nil {
		return nil, err
	}
	if !changed {
		return c, nil
	}
	if err := r.write(existing, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ContactRepo) MergeByEmail(_ context.Context, c *domain.Contact, merge func(existing *domain.Contact) bool) (*domain.Contact, bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	email := domain.NormalizeEmail(c.Email)
	if id, ok := r.db.byEmail[email]; ok {
		existing := r.db.contacts[id]
		merged := copyContact(existing)
		if !merge(merged) {
			return merged, false, nil
		}
		if err := r.write(existing, merged); err != nil {
			return nil, false, err
		}
		return merged, false, nil
	}
	cp := copyContact(c)
	cp.Email = email
	r.db.contacts[cp.ID] = cp
	r.db.byEmail[email] = cp.ID
	return copyContact(cp), true, nil
}

// write replaces existing with c. Must be called with the write lock held.
func (r *ContactRepo) write(existing, c *domain.Contact) error {
	email := domain.NormalizeEmail(c.Email)
	if email != existing.Email {
		if _, taken := r.db.byEmail[email]; taken {
			return contact.ErrDuplicateEmail
		}
		delete(r.db.byEmail, existing.Email)
		r.db.byEmail[email] = existing.ID
	}
	cp := copyContact(c)
	cp.ID = existing.ID
	cp.Email = email
	cp.CreatedAt = existing.CreatedAt
	r.db.contacts[cp.ID] = cp
	c.Email = email
	return nil
}

// Delete unlinks memberships, recipient rows and the timeline before
// removing the contact.
func (r *ContactRepo) Delete(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.contacts[id]
	if !ok {
		return contact.ErrNotFound
	}
	for _, m := range r.db.members {
		delete(m, id)
	}
	for key, rid := range r.db.recipientKeys {
		if key[1] == id {
			delete(r.db.recipients, rid)
			delete(r.db.recipientKeys, key)
		}
	}
	delete(r.db.activities, id)
	delete(r.db.byEmail, c.Email)
	delete(r.db.contacts, id)
	return nil
}
