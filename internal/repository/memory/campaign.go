package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/construction-crm/internal/domain"
	"github.com/ignite/construction-crm/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository.
type CampaignRepo struct{ db *DB }

func NewCampaignRepo(db *DB) *CampaignRepo { return &CampaignRepo{db: db} }

func (r *CampaignRepo) Get(_ context.Context, id string) (*domain.Campaign, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	c, ok := r.db.campaigns[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *CampaignRepo) List(_ context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []domain.Campaign
	for _, c := range r.db.campaigns {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, f.Limit, f.Offset), len(out), nil
}

func (r *CampaignRepo) Create(_ context.Context, c *domain.Campaign, contactIDs []string) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cp := *c
	r.db.campaigns[c.ID] = &cp
	return r.insertRecipients(c.ID, contactIDs), nil
}

// insertRecipients must be called with the write lock held.
func (r *CampaignRepo) insertRecipients(campaignID string, contactIDs []string) int {
	n := 0
	now := r.db.now().UTC()
	for _, contactID := range contactIDs {
		if _, ok := r.db.contacts[contactID]; !ok {
			continue
		}
		key := pairKey{campaignID, contactID}
		if _, dup := r.db.recipientKeys[key]; dup {
			continue
		}
		row := &recipientRow{
			CampaignRecipient: domain.CampaignRecipient{
				ID:         uuid.New().String(),
				CampaignID: campaignID,
				ContactID:  contactID,
				Status:     domain.RecipientPending,
				CreatedAt:  now,
			},
			seq: r.db.nextSeq(),
		}
		r.db.recipients[row.ID] = row
		r.db.recipientKeys[key] = row.ID
		n++
	}
	return n
}

func (r *CampaignRepo) Delete(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.campaigns[id]; !ok {
		return campaign.ErrNotFound
	}
	for key, rid := range r.db.recipientKeys {
		if key[0] == id {
			delete(r.db.recipients, rid)
			delete(r.db.recipientKeys, key)
		}
	}
	delete(r.db.campaigns, id)
	return nil
}

func (r *CampaignRepo) UpdateStatus(_ context.Context, id string, status domain.CampaignStatus, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = at
	if status == domain.CampaignSending && c.StartedAt == nil {
		t := at
		c.StartedAt = &t
	}
	if status == domain.CampaignCompleted && c.CompletedAt == nil {
		t := at
		c.CompletedAt = &t
		if c.StartedAt == nil {
			c.StartedAt = &t
		}
	}
	return nil
}

func (r *CampaignRepo) InsertRecipients(_ context.Context, campaignID string, contactIDs []string) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.campaigns[campaignID]; !ok {
		return 0, campaign.ErrNotFound
	}
	return r.insertRecipients(campaignID, contactIDs), nil
}

// rowsOf must be called with a lock held. Rows come back oldest first.
func (r *CampaignRepo) rowsOf(campaignID string, status domain.RecipientStatus) []*recipientRow {
	var rows []*recipientRow
	for _, row := range r.db.recipients {
		if row.CampaignID == campaignID && (status == "" || row.Status == status) {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	return rows
}

func (r *CampaignRepo) ClaimPending(_ context.Context, campaignID string, limit int, at time.Time, lease time.Duration) ([]domain.CampaignRecipient, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stale := at.Add(-lease)
	out := []domain.CampaignRecipient{}
	for _, row := range r.rowsOf(campaignID, domain.RecipientPending) {
		if limit > 0 && len(out) >= limit {
			break
		}
		if row.claimedAt != nil && !row.claimedAt.Before(stale) {
			continue
		}
		t := at
		row.claimedAt = &t
		out = append(out, row.CampaignRecipient)
	}
	return out, nil
}

func (r *CampaignRepo) ReleaseClaims(_ context.Context, recipientIDs []string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, id := range recipientIDs {
		if row, ok := r.db.recipients[id]; ok && row.Status == domain.RecipientPending {
			row.claimedAt = nil
		}
	}
	return nil
}

func (r *CampaignRepo) MarkSent(_ context.Context, recipientID string, at time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	row, ok := r.db.recipients[recipientID]
	if !ok || row.Status != domain.RecipientPending {
		return false, nil
	}
	t := at
	row.Status = domain.RecipientSent
	row.SentAt = &t
	row.claimedAt = nil
	return true, nil
}

func (r *CampaignRepo) MarkBounced(_ context.Context, recipientID, reason string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	row, ok := r.db.recipients[recipientID]
	if !ok || row.Status != domain.RecipientPending {
		return false, nil
	}
	row.Status = domain.RecipientBounced
	row.Error = reason
	row.claimedAt = nil
	return true, nil
}

func (r *CampaignRepo) CountPending(_ context.Context, campaignID string) (int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return len(r.rowsOf(campaignID, domain.RecipientPending)), nil
}

func (r *CampaignRepo) Stats(_ context.Context, campaignID string) (domain.CampaignStats, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var s domain.CampaignStats
	for _, row := range r.rowsOf(campaignID, "") {
		switch row.Status {
		case domain.RecipientPending:
			s.Pending++
		case domain.RecipientSent:
			s.Sent++
		case domain.RecipientBounced:
			s.Bounced++
		}
	}
	return s, nil
}

func (r *CampaignRepo) Recipients(_ context.Context, campaignID string) ([]domain.CampaignRecipient, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	rows := r.rowsOf(campaignID, "")
	out := make([]domain.CampaignRecipient, len(rows))
	for i, row := range rows {
		out[i] = row.CampaignRecipient
	}
	return out, nil
}

// SentCounter implements ratelimit.Counter over the shared recipient rows.
type SentCounter struct{ db *DB }

func NewSentCounter(db *DB) *SentCounter { return &SentCounter{db: db} }

func (c *SentCounter) CountSentSince(_ context.Context, since time.Time) (int, error) {
	c.db.mu.RLock()
	defer c.db.mu.RUnlock()
	n := 0
	for _, row := range c.db.recipients {
		if row.Status == domain.RecipientSent && row.SentAt != nil && !row.SentAt.Before(since) {
			n++
		}
	}
	return n, nil
}
