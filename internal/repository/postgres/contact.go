package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/construction-crm/internal/domain"
	"github.com/ignite/construction-crm/internal/service/contact"
	"github.com/lib/pq"
)

// ContactRepo implements contact.Repository against PostgreSQL.
type ContactRepo struct{ db *sql.DB }

// NewContactRepo creates a Postgres-backed contact repository.
func NewContactRepo(db *sql.DB) *ContactRepo { return &ContactRepo{db: db} }

const contactColumns = `id, email, name, phone, country_code, company, source, status,
	COALESCE(tags, '{}'), do_not_contact, unsubscribed, created_at, updated_at`

func scanContact(s scanner) (*domain.Contact, error) {
	c := &domain.Contact{}
	err := s.Scan(
		&c.ID, &c.Email, &c.Name, &c.Phone, &c.CountryCode, &c.Company, &c.Source, &c.Status,
		pq.Array(&c.Tags), &c.DoNotContact, &c.Unsubscribed, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return c, nil
}

func (r *ContactRepo) getOne(ctx context.Context, where string, arg any) (*domain.Contact, error) {
	c, err := scanContact(r.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM crm_contacts WHERE `+where+` = $1`, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contact.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return c, nil
}

func (r *ContactRepo) Get(ctx context.Context, id string) (*domain.Contact, error) {
	return r.getOne(ctx, "id", id)
}

func (r *ContactRepo) GetByEmail(ctx context.Context, email string) (*domain.Contact, error) {
	return r.getOne(ctx, "email", domain.NormalizeEmail(email))
}

func (r *ContactRepo) GetMany(ctx context.Context, ids []string) ([]domain.Contact, error) {
	if len(ids) == 0 {
		return []domain.Contact{}, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+contactColumns+` FROM crm_contacts WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get contacts: %w", err)
	}
	defer rows.Close()
	return collectContacts(rows)
}

func collectContacts(rows *sql.Rows) ([]domain.Contact, error) {
	out := []domain.Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *ContactRepo) List(ctx context.Context, f contact.ListFilter) ([]domain.Contact, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	idx := 1

	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if f.SegmentID != "" {
		where += fmt.Sprintf(" AND id IN (SELECT contact_id FROM crm_segment_members WHERE segment_id = $%d)", idx)
		args = append(args, f.SegmentID)
		idx++
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND (email ILIKE $%d OR name ILIKE $%d OR company ILIKE $%d)", idx, idx, idx)
		args = append(args, "%"+f.Search+"%")
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM crm_contacts`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count contacts: %w", err)
	}

	q := `SELECT ` + contactColumns + ` FROM crm_contacts` + where + ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT $%d OFFSET $%d", idx, idx+1)
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()
	out, err := collectContacts(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func tagsOf(c *domain.Contact) []string {
	if c.Tags == nil {
		return []string{}
	}
	return c.Tags
}

func (r *ContactRepo) Create(ctx context.Context, c *domain.Contact) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO crm_contacts
			(id, email, name, phone, country_code, company, source, status,
			 tags, do_not_contact, unsubscribed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, c.ID, domain.NormalizeEmail(c.Email), c.Name, c.Phone, c.CountryCode, c.Company, c.Source, c.Status,
		pq.Array(tagsOf(c)), c.DoNotContact, c.Unsubscribed, c.CreatedAt, c.UpdatedAt)
	if isUniqueViolation(err) {
		return contact.ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("create contact: %w", err)
	}
	return nil
}

// lockContact reads one contact row FOR UPDATE inside tx.
func lockContact(ctx context.Context, tx *sql.Tx, where string, arg any) (*domain.Contact, error) {
	c, err := scanContact(tx.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM crm_contacts WHERE `+where+` = $1 FOR UPDATE`, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contact.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock contact: %w", err)
	}
	return c, nil
}

func writeContact(ctx context.Context, tx *sql.Tx, c *domain.Contact) error {
	c.Email = domain.NormalizeEmail(c.Email)
	_, err := tx.ExecContext(ctx, `
		UPDATE crm_contacts SET
			email = $2, name = $3, phone = $4, country_code = $5, company = $6, source = $7,
			status = $8, tags = $9, do_not_contact = $10, unsubscribed = $11, updated_at = $12
		WHERE id = $1
	`, c.ID, c.Email, c.Name, c.Phone, c.CountryCode, c.Company, c.Source,
		c.Status, pq.Array(tagsOf(c)), c.DoNotContact, c.Unsubscribed, c.UpdatedAt)
	if isUniqueViolation(err) {
		return contact.ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("update contact: %w", err)
	}
	return nil
}

func (r *ContactRepo) Modify(ctx context.Context, id string, fn func(c *domain.Contact) (bool, error)) (*domain.Contact, error) {
	var out *domain.Contact
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		c, err := lockContact(ctx, tx, "id", id)
		if err != nil {
			return err
		}
		changed, err := fn(c)
		if err != nil {
			return err
		}
		if changed {
			if err := writeContact(ctx, tx, c); err != nil {
				return err
			}
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MergeByEmail locks the row for c's email, or inserts c when there is none.
// A concurrent insert of the same email makes ON CONFLICT wait for it to
// commit; the row is then locked and merged like any existing one.
func (r *ContactRepo) MergeByEmail(ctx context.Context, c *domain.Contact, merge func(existing *domain.Contact) bool) (*domain.Contact, bool, error) {
	var (
		out     *domain.Contact
		created bool
	)
	email := domain.NormalizeEmail(c.Email)
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		existing, err := lockContact(ctx, tx, "email", email)
		if errors.Is(err, contact.ErrNotFound) {
			res, insErr := tx.ExecContext(ctx, `
				INSERT INTO crm_contacts
					(id, email, name, phone, country_code, company, source, status,
					 tags, do_not_contact, unsubscribed, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
				ON CONFLICT (email) DO NOTHING
			`, c.ID, email, c.Name, c.Phone, c.CountryCode, c.Company, c.Source, c.Status,
				pq.Array(tagsOf(c)), c.DoNotContact, c.Unsubscribed, c.CreatedAt, c.UpdatedAt)
			if insErr != nil {
				return fmt.Errorf("insert contact: %w", insErr)
			}
			if affected(res) == 1 {
				c.Email = email
				out, created = c, true
				return nil
			}
			existing, err = lockContact(ctx, tx, "email", email)
		}
		if err != nil {
			return err
		}
		if merge(existing) {
			if err := writeContact(ctx, tx, existing); err != nil {
				return err
			}
		}
		out = existing
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

// Delete unlinks memberships, recipient rows and the timeline before
// removing the contact.
func (r *ContactRepo) Delete(ctx context.Context, id string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM crm_segment_members WHERE contact_id = $1`,
			`DELETE FROM crm_campaign_recipients WHERE contact_id = $1`,
			`DELETE FROM crm_activities WHERE contact_id = $1`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return fmt.Errorf("unlink contact: %w", err)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM crm_contacts WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete contact: %w", err)
		}
		if affected(res) == 0 {
			return contact.ErrNotFound
		}
		return nil
	})
}
