package memory

import (
	"context"
	"sort"

	"github.com/ignite/construction-crm/internal/domain"
	"github.com/ignite/construction-crm/internal/service/template"
)

// TemplateRepo implements template.Repository.
type TemplateRepo struct{ db *DB }

func NewTemplateRepo(db *DB) *TemplateRepo { return &TemplateRepo{db: db} }

func (r *TemplateRepo) Get(_ context.Context, id string) (*domain.EmailTemplate, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	t, ok := r.db.templates[id]
	if !ok {
		return nil, template.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *TemplateRepo) List(_ context.Context) ([]domain.EmailTemplate, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := make([]domain.EmailTemplate, 0, len(r.db.templates))
	for _, t := range r.db.templates {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *TemplateRepo) Create(_ context.Context, t *domain.EmailTemplate) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cp := *t
	r.db.templates[t.ID] = &cp
	return nil
}

func (r *TemplateRepo) Update(_ context.Context, t *domain.EmailTemplate) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	existing, ok := r.db.templates[t.ID]
	if !ok {
		return template.ErrNotFound
	}
	cp := *t
	cp.CreatedAt = existing.CreatedAt
	r.db.templates[t.ID] = &cp
	return nil
}

func (r *TemplateRepo) Delete(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.templates[id]; !ok {
		return template.ErrNotFound
	}
	for _, c := range r.db.campaigns {
		if c.TemplateID == id {
			return template.ErrInUse
		}
	}
	delete(r.db.templates, id)
	return nil
}
