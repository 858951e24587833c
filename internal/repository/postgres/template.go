package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/construction-crm/internal/domain"
	"github.com/ignite/construction-crm/internal/service/template"
)

// TemplateRepo implements template.Repository against PostgreSQL.
type TemplateRepo struct{ db *sql.DB }

// NewTemplateRepo creates a Postgres-backed template repository.
func NewTemplateRepo(db *sql.DB) *TemplateRepo { return &TemplateRepo{db: db} }

func (r *TemplateRepo) Get(ctx context.Context, id string) (*domain.EmailTemplate, error) {
	t := &domain.EmailTemplate{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, subject, body, created_at, updated_at
		FROM crm_email_templates WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.Subject, &t.Body, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, template.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

func (r *TemplateRepo) List(ctx context.Context) ([]domain.EmailTemplate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, subject, body, created_at, updated_at
		FROM crm_email_templates ORDER BY name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	out := []domain.EmailTemplate{}
	for rows.Next() {
		var t domain.EmailTemplate
		if err := rows.Scan(&t.ID, &t.Name, &t.Subject, &t.Body, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TemplateRepo) Create(ctx context.Context, t *domain.EmailTemplate) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO crm_email_templates (id, name, subject, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, t.ID, t.Name, t.Subject, t.Body, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func (r *TemplateRepo) Update(ctx context.Context, t *domain.EmailTemplate) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE crm_email_templates SET name = $2, subject = $3, body = $4, updated_at = $5 WHERE id = $1`,
		t.ID, t.Name, t.Subject, t.Body, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	if affected(res) == 0 {
		return template.ErrNotFound
	}
	return nil
}

func (r *TemplateRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM crm_email_templates WHERE id = $1`, id)
	if isForeignKeyViolation(err) {
		return template.ErrInUse
	}
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if affected(res) == 0 {
		return template.ErrNotFound
	}
	return nil
}
