package contact_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ignite/construction-crm/internal/auth"
	"github.com/ignite/construction-crm/internal/domain"
	"github.com/ignite/construction-crm/internal/repository/memory"
	"github.com/ignite/construction-crm/internal/service/contact"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	db         *memory.DB
	svc        *contact.Service
	activities *memory.ActivityRepo
	segments   *memory.SegmentRepo
	campaigns  *memory.CampaignRepo
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := memory.NewDB()
	acts := memory.NewActivityRepo(db)
	return &fixture{
		db:         db,
		svc:        contact.NewService(memory.NewContactRepo(db), acts, nil, nil),
		activities: acts,
		segments:   memory.NewSegmentRepo(db),
		campaigns:  memory.NewCampaignRepo(db),
	}
}

func TestUpsertByEmail_CreatesThenMerges(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	c1, created, err := f.svc.Upsert(ctx, "  Jane@Example.com", domain.ContactFields{Name: "Jane Doe"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "jane@example.com", c1.Email)
	assert.Equal(t, domain.ContactNew, c1.Status)

	c2, created, err := f.svc.Upsert(ctx, "jane@example.com", domain.ContactFields{Company: "Acme"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, c1.ID, c2.ID)
	assert.Equal(t, "Jane Doe", c2.Name)
	assert.Equal(t, "Acme", c2.Company)

	_, total, err := f.svc.List(ctx, contact.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestUpsertByEmail_BlankNeverOverwrites(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, _, err := f.svc.Upsert(ctx, "bob@x.com", domain.ContactFields{Company: "BuildCo", Phone: "555-0100"})
	require.NoError(t, err)

	c, created, err := f.svc.Upsert(ctx, "bob@x.com", domain.ContactFields{Company: "", Phone: "555-9999"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "BuildCo", c.Company)
	assert.Equal(t, "555-0100", c.Phone)
}

// unsubscribeFirst lets an unsubscribe land just before each merge reaches
// storage, as when a flag change races an import row.
type unsubscribeFirst struct {
	*memory.ContactRepo
}

func (r unsubscribeFirst) MergeByEmail(ctx context.Context, c *domain.Contact, merge func(*domain.Contact) bool) (*domain.Contact, bool, error) {
	if existing, err := r.GetByEmail(ctx, c.Email); err == nil {
		_, err := r.Modify(ctx, existing.ID, func(s *domain.Contact) (bool, error) {
			s.Unsubscribed = true
			return true, nil
		})
		if err != nil {
			return nil, false, err
		}
	}
	return r.ContactRepo.MergeByEmail(ctx, c, merge)
}

func TestUpsertByEmail_KeepsConcurrentUnsubscribe(t *testing.T) {
	db := memory.NewDB()
	repo := memory.NewContactRepo(db)
	svc := contact.NewService(unsubscribeFirst{repo}, memory.NewActivityRepo(db), nil, nil)
	ctx := context.Background()

	_, _, err := svc.Upsert(ctx, "a@x.com", domain.ContactFields{Name: "Ann"})
	require.NoError(t, err)

	c, created, err := svc.Upsert(ctx, "a@x.com", domain.ContactFields{Company: "Acme"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "Acme", c.Company)
	assert.True(t, c.Unsubscribed)

	stored, err := repo.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, stored.Unsubscribed)
	assert.Equal(t, "Ann", stored.Name)
}

func TestUpsertByEmail_ConcurrentWritersKeepEachOthersFields(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	seed, _, err := f.svc.Upsert(ctx, "crew@x.com", domain.ContactFields{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	fields := []domain.ContactFields{
		{Name: "Crew Lead"}, {Company: "Frame Co"}, {Phone: "555-0101"}, {CountryCode: "US"},
	}
	for _, fl := range fields {
		wg.Add(1)
		go func(fl domain.ContactFields) {
			defer wg.Done()
			_, _, err := f.svc.Upsert(ctx, "crew@x.com", fl)
			assert.NoError(t, err)
		}(fl)
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := f.svc.Upsert(ctx, "crew@x.com", domain.ContactFields{Tags: []string{fmt.Sprintf("t%d", i)}})
			assert.NoError(t, err)
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.svc.SetFlags(ctx, seed.ID, false, true)
		assert.NoError(t, err)
	}()
	wg.Wait()

	got, err := f.svc.Get(ctx, seed.ID)
	require.NoError(t, err)
	assert.Equal(t, "Crew Lead", got.Name)
	assert.Equal(t, "Frame Co", got.Company)
	assert.Equal(t, "555-0101", got.Phone)
	assert.Equal(t, "US", got.CountryCode)
	assert.Equal(t, []string{"t0", "t1", "t2", "t3"}, got.Tags)
	assert.True(t, got.Unsubscribed)
}

func TestUpsertByEmail_RejectsBadEmail(t *testing.T) {
	f := setup(t)
	_, _, err := f.svc.Upsert(context.Background(), "not-an-email", domain.ContactFields{})
	assert.True(t, errors.Is(err, contact.ErrInvalidInput))
}

func TestCreate_Duplicate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "a@x.com", domain.ContactFields{Name: "A"})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, "A@X.COM", domain.ContactFields{Name: "B"})
	assert.ErrorIs(t, err, contact.ErrDuplicateEmail)
}

func TestUpdate_OverwritesExplicitFields(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c, err := f.svc.Create(ctx, "a@x.com", domain.ContactFields{Name: "Ann", Company: "Old Co"})
	require.NoError(t, err)

	blank := ""
	newName := "Ann Smith"
	got, err := f.svc.Update(ctx, c.ID, contact.UpdateFields{Name: &newName, Company: &blank})
	require.NoError(t, err)
	assert.Equal(t, "Ann Smith", got.Name)
	assert.Equal(t, "", got.Company)
}

func TestUpdate_EmailCollision(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, "a@x.com", domain.ContactFields{})
	require.NoError(t, err)
	b, err := f.svc.Create(ctx, "b@x.com", domain.ContactFields{})
	require.NoError(t, err)

	email := "A@x.com"
	_, err = f.svc.Update(ctx, b.ID, contact.UpdateFields{Email: &email})
	assert.ErrorIs(t, err, contact.ErrDuplicateEmail)
}

func TestSetStatus_AppendsNote(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c, err := f.svc.Create(ctx, "a@x.com", domain.ContactFields{})
	require.NoError(t, err)

	got, err := f.svc.SetStatus(ctx, c.ID, domain.ContactQualified)
	require.NoError(t, err)
	assert.Equal(t, domain.ContactQualified, got.Status)

	acts, err := f.activities.List(ctx, c.ID, 10)
	require.NoError(t, err)
	require.Len(t, acts, 1)
	note, ok := acts[0].Payload.(domain.NotePayload)
	require.True(t, ok)
	assert.Equal(t, "Status changed from new to qualified", note.Text)

	_, err = f.svc.SetStatus(ctx, c.ID, "won")
	assert.ErrorIs(t, err, contact.ErrInvalidInput)
}

func TestSetFlags(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c, err := f.svc.Create(ctx, "a@x.com", domain.ContactFields{})
	require.NoError(t, err)

	got, err := f.svc.SetFlags(ctx, c.ID, false, true)
	require.NoError(t, err)
	assert.True(t, got.Excluded())

	got, err = f.svc.SetFlags(ctx, c.ID, false, false)
	require.NoError(t, err)
	assert.False(t, got.Excluded())
}

func TestConvertLead(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	c, created, err := f.svc.ConvertLead(ctx, contact.Lead{
		Form:   "quote_request",
		Email:  "lead@x.com",
		Name:   "Lee Lead",
		Fields: map[string]string{"project": "extension"},
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, contact.LeadSource, c.Source)

	acts, err := f.activities.List(ctx, c.ID, 10)
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, domain.ActivityFormSubmission, acts[0].Kind)
	assert.Equal(t, "extension", acts[0].Payload.(domain.FormSubmissionPayload).Fields["project"])
}

func TestDelete_UnlinksMembershipsAndRecipients(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c, err := f.svc.Create(ctx, "a@x.com", domain.ContactFields{})
	require.NoError(t, err)

	seg := &domain.Segment{ID: "seg-1", Name: "VIP", Color: domain.DefaultSegmentColor}
	require.NoError(t, f.segments.Create(ctx, seg))
	require.NoError(t, f.segments.AddMemberships(ctx, c.ID, []string{seg.ID}))

	camp := &domain.Campaign{ID: "camp-1", Name: "Q1", Status: domain.CampaignDraft}
	n, err := f.campaigns.Create(ctx, camp, []string{c.ID})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, f.svc.Delete(ctx, c.ID))

	_, err = f.svc.Get(ctx, c.ID)
	assert.ErrorIs(t, err, contact.ErrNotFound)
	members, _ := f.segments.Members(ctx, seg.ID)
	assert.Empty(t, members)
	stats, _ := f.campaigns.Stats(ctx, camp.ID)
	assert.Equal(t, 0, stats.Total())
}

func TestList_Filters(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, "a@x.com", domain.ContactFields{Name: "Alice", Company: "Stone Works"})
	require.NoError(t, err)
	b, err := f.svc.Create(ctx, "b@x.com", domain.ContactFields{Name: "Bob", Status: domain.ContactProposal})
	require.NoError(t, err)

	out, total, err := f.svc.List(ctx, contact.ListFilter{Status: domain.ContactProposal})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, b.ID, out[0].ID)

	out, _, err = f.svc.List(ctx, contact.ListFilter{Search: "stone"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "a@x.com", out[0].Email)
}

func TestMutationsRequirePermission(t *testing.T) {
	db := memory.NewDB()
	authz := auth.NewRoleAuthorizer(map[string][]string{"viewer": {}})
	svc := contact.NewService(memory.NewContactRepo(db), memory.NewActivityRepo(db), authz, nil)

	ctx := auth.WithIdentity(context.Background(), auth.Identity{UserID: "u1", Role: "viewer"})
	_, err := svc.Create(ctx, "a@x.com", domain.ContactFields{})
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, total, err := svc.List(ctx, contact.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}
