package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/construction-crm/internal/domain"
	"github.com/ignite/construction-crm/internal/service/campaign"
	"github.com/lib/pq"
)

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `id, name, campaign_type, template_id, status,
	started_at, completed_at, created_at, updated_at`

func scanCampaign(s scanner) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	var started, completed sql.NullTime
	if err := s.Scan(&c.ID, &c.Name, &c.Type, &c.TemplateID, &c.Status,
		&started, &completed, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if started.Valid {
		c.StartedAt = &started.Time
	}
	if completed.Valid {
		c.CompletedAt = &completed.Time
	}
	return c, nil
}

func (r *CampaignRepo) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM crm_campaigns WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	where := ""
	args := []interface{}{}
	idx := 1
	if f.Status != "" {
		where = fmt.Sprintf(" WHERE status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM crm_campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	q := `SELECT ` + campaignColumns + ` FROM crm_campaigns` + where + ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT $%d OFFSET $%d", idx, idx+1)
		args = append(args, f.Limit, f.Offset)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	out := []domain.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign, contactIDs []string) (int, error) {
	var n int
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO crm_campaigns (id, name, campaign_type, template_id, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, c.ID, c.Name, c.Type, c.TemplateID, c.Status, c.CreatedAt, c.UpdatedAt); err != nil {
			return fmt.Errorf("create campaign: %w", err)
		}
		var err error
		n, err = insertRecipients(ctx, tx, c.ID, contactIDs)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// insertRecipients enrolls contacts one row at a time so unknown contacts and
// existing enrollments are skipped without failing the batch.
func insertRecipients(ctx context.Context, tx *sql.Tx, campaignID string, contactIDs []string) (int, error) {
	n := 0
	for _, contactID := range contactIDs {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO crm_campaign_recipients (id, campaign_id, contact_id, status, created_at)
			SELECT $1, $2, c.id, 'pending', NOW() FROM crm_contacts c WHERE c.id = $3
			ON CONFLICT (campaign_id, contact_id) DO NOTHING
		`, uuid.New().String(), campaignID, contactID)
		if err != nil {
			return 0, fmt.Errorf("insert recipient: %w", err)
		}
		n += affected(res)
	}
	return n, nil
}

func (r *CampaignRepo) Delete(ctx context.Context, id string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM crm_campaign_recipients WHERE campaign_id = $1`, id); err != nil {
			return fmt.Errorf("delete recipients: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM crm_campaigns WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete campaign: %w", err)
		}
		if affected(res) == 0 {
			return campaign.ErrNotFound
		}
		return nil
	})
}

func (r *CampaignRepo) UpdateStatus(ctx context.Context, id string, status domain.CampaignStatus, at time.Time) error {
	started := status == domain.CampaignSending || status == domain.CampaignCompleted
	completed := status == domain.CampaignCompleted
	res, err := r.db.ExecContext(ctx, `
		UPDATE crm_campaigns SET
			status = $2,
			updated_at = $3,
			started_at = CASE WHEN $4 THEN COALESCE(started_at, $3) ELSE started_at END,
			completed_at = CASE WHEN $5 THEN COALESCE(completed_at, $3) ELSE completed_at END
		WHERE id = $1
	`, id, status, at, started, completed)
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	if affected(res) == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) InsertRecipients(ctx context.Context, campaignID string, contactIDs []string) (int, error) {
	var n int
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		ok, err := exists(ctx, tx, `SELECT EXISTS(SELECT 1 FROM crm_campaigns WHERE id = $1)`, campaignID)
		if err != nil {
			return fmt.Errorf("check campaign: %w", err)
		}
		if !ok {
			return campaign.ErrNotFound
		}
		n, err = insertRecipients(ctx, tx, campaignID, contactIDs)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

const recipientColumns = `id, campaign_id, contact_id, status, sent_at, error, created_at`

func (r *CampaignRepo) queryRecipients(ctx context.Context, q string, args ...any) ([]domain.CampaignRecipient, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query recipients: %w", err)
	}
	defer rows.Close()

	out := []domain.CampaignRecipient{}
	for rows.Next() {
		var (
			rc     domain.CampaignRecipient
			sentAt sql.NullTime
		)
		if err := rows.Scan(&rc.ID, &rc.CampaignID, &rc.ContactID, &rc.Status,
			&sentAt, &rc.Error, &rc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		if sentAt.Valid {
			rc.SentAt = &sentAt.Time
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// ClaimPending stamps claimed_at on the oldest unclaimed pending rows.
// SKIP LOCKED lets concurrent claims pass each other without waiting.
func (r *CampaignRepo) ClaimPending(ctx context.Context, campaignID string, limit int, at time.Time, lease time.Duration) ([]domain.CampaignRecipient, error) {
	if limit <= 0 {
		return []domain.CampaignRecipient{}, nil
	}
	return r.queryRecipients(ctx, `
		WITH claimed AS (
			UPDATE crm_campaign_recipients SET claimed_at = $3
			WHERE id IN (
				SELECT id FROM crm_campaign_recipients
				WHERE campaign_id = $1 AND status = 'pending'
				  AND (claimed_at IS NULL OR claimed_at < $4)
				ORDER BY seq
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			)
			RETURNING `+recipientColumns+`, seq
		)
		SELECT `+recipientColumns+` FROM claimed ORDER BY seq
	`, campaignID, limit, at, at.Add(-lease))
}

func (r *CampaignRepo) ReleaseClaims(ctx context.Context, recipientIDs []string) error {
	if len(recipientIDs) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE crm_campaign_recipients SET claimed_at = NULL
		WHERE id = ANY($1) AND status = 'pending'
	`, pq.Array(recipientIDs))
	if err != nil {
		return fmt.Errorf("release claims: %w", err)
	}
	return nil
}

func (r *CampaignRepo) MarkSent(ctx context.Context, recipientID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE crm_campaign_recipients SET status = 'sent', sent_at = $2, claimed_at = NULL
		WHERE id = $1 AND status = 'pending'
	`, recipientID, at)
	if err != nil {
		return false, fmt.Errorf("mark sent: %w", err)
	}
	return affected(res) == 1, nil
}

func (r *CampaignRepo) MarkBounced(ctx context.Context, recipientID, reason string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE crm_campaign_recipients SET status = 'bounced', error = $2, claimed_at = NULL
		WHERE id = $1 AND status = 'pending'
	`, recipientID, reason)
	if err != nil {
		return false, fmt.Errorf("mark bounced: %w", err)
	}
	return affected(res) == 1, nil
}

func (r *CampaignRepo) CountPending(ctx context.Context, campaignID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM crm_campaign_recipients WHERE campaign_id = $1 AND status = 'pending'`,
		campaignID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

func (r *CampaignRepo) Stats(ctx context.Context, campaignID string) (domain.CampaignStats, error) {
	var s domain.CampaignStats
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM crm_campaign_recipients
		WHERE campaign_id = $1 GROUP BY status
	`, campaignID)
	if err != nil {
		return s, fmt.Errorf("campaign stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status domain.RecipientStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return s, fmt.Errorf("scan stats: %w", err)
		}
		switch status {
		case domain.RecipientPending:
			s.Pending = n
		case domain.RecipientSent:
			s.Sent = n
		case domain.RecipientBounced:
			s.Bounced = n
		}
	}
	return s, rows.Err()
}

func (r *CampaignRepo) Recipients(ctx context.Context, campaignID string) ([]domain.CampaignRecipient, error) {
	return r.queryRecipients(ctx, `SELECT `+recipientColumns+` FROM crm_campaign_recipients
		WHERE campaign_id = $1 ORDER BY seq`, campaignID)
}

// SentCounter implements ratelimit.Counter by counting sent recipient rows
// across all campaigns.
type SentCounter struct{ db *sql.DB }

func NewSentCounter(db *sql.DB) *SentCounter { return &SentCounter{db: db} }

func (c *SentCounter) CountSentSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM crm_campaign_recipients WHERE status = 'sent' AND sent_at >= $1`,
		since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sent: %w", err)
	}
	return n, nil
}
