package memory

import (
	"context"
	"sort"

	"github.com/ignite/construction-crm/internal/domain"
	"github.com/ignite/construction-crm/internal/service/activity"
)

// ActivityRepo implements activity.Repository.
type ActivityRepo struct{ db *DB }

func NewActivityRepo(db *DB) *ActivityRepo { return &ActivityRepo{db: db} }

func (r *ActivityRepo) Append(_ context.Context, a *domain.Activity) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.contacts[a.ContactID]; !ok {
		return activity.ErrContactNotFound
	}
	r.db.activities[a.ContactID] = append(r.db.activities[a.ContactID],
		activityRow{Activity: *a, seq: r.db.nextSeq()})
	return nil
}

func (r *ActivityRepo) List(_ context.Context, contactID string, limit int) ([]domain.Activity, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	rows := append([]activityRow(nil), r.db.activities[contactID]...)
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})
	rows = paginate(rows, limit, 0)
	out := make([]domain.Activity, len(rows))
	for i, row := range rows {
		out[i] = row.Activity
	}
	return out, nil
}

// ViewStateRepo implements viewstate.Repository.
type ViewStateRepo struct{ db *DB }

func NewViewStateRepo(db *DB) *ViewStateRepo { return &ViewStateRepo{db: db} }

func (r *ViewStateRepo) Upsert(_ context.Context, st *domain.ListViewState) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.views[pairKey{st.UserID, st.View}] = *st
	return nil
}

func (r *ViewStateRepo) Get(_ context.Context, userID, view string) (*domain.ListViewState, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	st, ok := r.db.views[pairKey{userID, view}]
	if !ok {
		return nil, nil
	}
	return &st, nil
}
