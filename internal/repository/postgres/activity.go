package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ignite/construction-crm/internal/domain"
	"github.com/ignite/construction-crm/internal/service/activity"
)

// ActivityRepo implements activity.Repository against PostgreSQL. Payloads
// are stored as JSONB and decoded by activity type.
type ActivityRepo struct{ db *sql.DB }

func NewActivityRepo(db *sql.DB) *ActivityRepo { return &ActivityRepo{db: db} }

func (r *ActivityRepo) Append(ctx context.Context, a *domain.Activity) error {
	payload, err := json.Marshal(a.Payload)
	if err != nil {
		return fmt.Errorf("encode activity payload: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO crm_activities (id, contact_id, activity_type, payload, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.ContactID, a.Kind, string(payload), a.Actor, a.CreatedAt)
	if isForeignKeyViolation(err) {
		return activity.ErrContactNotFound
	}
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

func (r *ActivityRepo) List(ctx context.Context, contactID string, limit int) ([]domain.Activity, error) {
	q := `SELECT id, contact_id, activity_type, payload, actor, created_at
		FROM crm_activities WHERE contact_id = $1
		ORDER BY created_at DESC, seq DESC`
	args := []any{contactID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	out := []domain.Activity{}
	for rows.Next() {
		var (
			a   domain.Activity
			raw []byte
		)
		if err := rows.Scan(&a.ID, &a.ContactID, &a.Kind, &raw, &a.Actor, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if a.Payload, err = domain.DecodeActivityPayload(a.Kind, raw); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ViewStateRepo implements viewstate.Repository against PostgreSQL.
type ViewStateRepo struct{ db *sql.DB }

func NewViewStateRepo(db *sql.DB) *ViewStateRepo { return &ViewStateRepo{db: db} }

func (r *ViewStateRepo) Upsert(ctx context.Context, st *domain.ListViewState) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO crm_list_view_state (user_id, view, last_viewed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, view) DO UPDATE SET last_viewed_at = EXCLUDED.last_viewed_at
	`, st.UserID, st.View, st.LastViewedAt)
	if err != nil {
		return fmt.Errorf("upsert view state: %w", err)
	}
	return nil
}

func (r *ViewStateRepo) Get(ctx context.Context, userID, view string) (*domain.ListViewState, error) {
	st := &domain.ListViewState{}
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, view, last_viewed_at FROM crm_list_view_state
		WHERE user_id = $1 AND view = $2
	`, userID, view).Scan(&st.UserID, &st.View, &st.LastViewedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get view state: %w", err)
	}
	return st, nil
}
