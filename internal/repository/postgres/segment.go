package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/construction-crm/internal/domain"
	"github.com/ignite/construction-crm/internal/service/segment"
	"github.com/lib/pq"
)

// SegmentRepo implements segment.Repository against PostgreSQL.
type SegmentRepo struct{ db *sql.DB }

// NewSegmentRepo creates a Postgres-backed segment repository.
func NewSegmentRepo(db *sql.DB) *SegmentRepo { return &SegmentRepo{db: db} }

const segmentSelect = `
	SELECT s.id, s.name, s.color, s.created_at, s.updated_at,
	       (SELECT COUNT(*) FROM crm_segment_members m WHERE m.segment_id = s.id)
	FROM crm_segments s`

func scanSegment(sc scanner) (domain.Segment, error) {
	var s domain.Segment
	err := sc.Scan(&s.ID, &s.Name, &s.Color, &s.CreatedAt, &s.UpdatedAt, &s.MemberCount)
	return s, err
}

func collectSegments(rows *sql.Rows) ([]domain.Segment, error) {
	out := []domain.Segment{}
	for rows.Next() {
		s, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SegmentRepo) Get(ctx context.Context, id string) (*domain.Segment, error) {
	s, err := scanSegment(r.db.QueryRowContext(ctx, segmentSelect+` WHERE s.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, segment.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get segment: %w", err)
	}
	return &s, nil
}

func (r *SegmentRepo) List(ctx context.Context) ([]domain.Segment, error) {
	rows, err := r.db.QueryContext(ctx, segmentSelect+` ORDER BY s.name, s.id`)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()
	return collectSegments(rows)
}

func (r *SegmentRepo) Create(ctx context.Context, s *domain.Segment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO crm_segments (id, name, color, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, s.ID, s.Name, s.Color, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create segment: %w", err)
	}
	return nil
}

func (r *SegmentRepo) Update(ctx context.Context, s *domain.Segment) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE crm_segments SET name = $2, color = $3, updated_at = $4 WHERE id = $1`,
		s.ID, s.Name, s.Color, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update segment: %w", err)
	}
	if affected(res) == 0 {
		return segment.ErrNotFound
	}
	return nil
}

func (r *SegmentRepo) Delete(ctx context.Context, id string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM crm_segment_members WHERE segment_id = $1`, id); err != nil {
			return fmt.Errorf("delete segment members: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM crm_segments WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete segment: %w", err)
		}
		if affected(res) == 0 {
			return segment.ErrNotFound
		}
		return nil
	})
}

func checkContact(ctx context.Context, q querier, contactID string) error {
	ok, err := exists(ctx, q, `SELECT EXISTS(SELECT 1 FROM crm_contacts WHERE id = $1)`, contactID)
	if err != nil {
		return fmt.Errorf("check contact: %w", err)
	}
	if !ok {
		return fmt.Errorf("contact %s: %w", contactID, segment.ErrNotFound)
	}
	return nil
}

// checkLinks verifies the contact and every segment exist. segmentIDs must
// be free of duplicates.
func checkLinks(ctx context.Context, q querier, contactID string, segmentIDs []string) error {
	if err := checkContact(ctx, q, contactID); err != nil {
		return err
	}
	if len(segmentIDs) == 0 {
		return nil
	}
	var n int
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM crm_segments WHERE id = ANY($1)`, pq.Array(segmentIDs),
	).Scan(&n); err != nil {
		return fmt.Errorf("check segments: %w", err)
	}
	if n != len(segmentIDs) {
		return fmt.Errorf("segments %v: %w", segmentIDs, segment.ErrNotFound)
	}
	return nil
}

func link(ctx context.Context, q querier, contactID string, segmentIDs []string) error {
	if len(segmentIDs) == 0 {
		return nil
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO crm_segment_members (segment_id, contact_id)
		SELECT unnest($2::text[]), $1
		ON CONFLICT (segment_id, contact_id) DO NOTHING
	`, contactID, pq.Array(segmentIDs))
	if err != nil {
		return fmt.Errorf("link segments: %w", err)
	}
	return nil
}

func (r *SegmentRepo) SetMembership(ctx context.Context, contactID string, segmentIDs []string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := checkLinks(ctx, tx, contactID, segmentIDs); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM crm_segment_members WHERE contact_id = $1`, contactID); err != nil {
			return fmt.Errorf("clear memberships: %w", err)
		}
		return link(ctx, tx, contactID, segmentIDs)
	})
}

func (r *SegmentRepo) AddMemberships(ctx context.Context, contactID string, segmentIDs []string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := checkLinks(ctx, tx, contactID, segmentIDs); err != nil {
			return err
		}
		return link(ctx, tx, contactID, segmentIDs)
	})
}

func (r *SegmentRepo) RemoveMemberships(ctx context.Context, contactID string, segmentIDs []string) error {
	if err := checkContact(ctx, r.db, contactID); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM crm_segment_members WHERE contact_id = $1 AND segment_id = ANY($2)`,
		contactID, pq.Array(segmentIDs),
	); err != nil {
		return fmt.Errorf("remove memberships: %w", err)
	}
	return nil
}

func (r *SegmentRepo) Members(ctx context.Context, segmentID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT contact_id FROM crm_segment_members WHERE segment_id = $1 ORDER BY contact_id`, segmentID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *SegmentRepo) SegmentsOf(ctx context.Context, contactID string) ([]domain.Segment, error) {
	rows, err := r.db.QueryContext(ctx, segmentSelect+`
		JOIN crm_segment_members cm ON cm.segment_id = s.id
		WHERE cm.contact_id = $1
		ORDER BY s.name, s.id`, contactID)
	if err != nil {
		return nil, fmt.Errorf("segments of contact: %w", err)
	}
	defer rows.Close()
	return collectSegments(rows)
}
