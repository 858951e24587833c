package activity_test

import (
	"context"
	"sync"
	"testing"

	"github.com/ignite/construction-crm/internal/audit"
	"github.com/ignite/construction-crm/internal/auth"
	"github.com/ignite/construction-crm/internal/domain"
	"github.com/ignite/construction-crm/internal/repository/memory"
	"github.com/ignite/construction-crm/internal/service/activity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *recordingSink) Record(_ context.Context, e audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func seed(t *testing.T, db *memory.DB) string {
	t.Helper()
	c := domain.ContactFields{Name: "Jane Roe"}.NewContact("jane@x.com")
	c.ID = "c1"
	require.NoError(t, memory.NewContactRepo(db).Create(context.Background(), c))
	return c.ID
}

func TestAppend_StampsActorAndAudits(t *testing.T) {
	db := memory.NewDB()
	id := seed(t, db)
	sink := &recordingSink{}
	svc := activity.NewService(memory.NewActivityRepo(db), nil, sink)

	ctx := auth.WithIdentity(context.Background(), auth.Identity{UserID: "u-7", Role: "sales"})
	a, err := svc.Append(ctx, id, domain.NotePayload{Text: "Wants a quote for the deck"})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, domain.ActivityNote, a.Kind)
	assert.Equal(t, "u-7", a.Actor)
	assert.False(t, a.CreatedAt.IsZero())

	require.Len(t, sink.events, 1)
	assert.Equal(t, "activity.append", sink.events[0].Action)
	assert.Equal(t, "u-7", sink.events[0].Actor)
}

func TestAppend_Validation(t *testing.T) {
	db := memory.NewDB()
	id := seed(t, db)
	svc := activity.NewService(memory.NewActivityRepo(db), nil, nil)
	ctx := context.Background()

	_, err := svc.Append(ctx, id, domain.NotePayload{Text: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidActivity)

	_, err = svc.Append(ctx, id, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidActivity)

	_, err = svc.Append(ctx, id, domain.CallPayload{DurationSeconds: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidActivity)

	_, err = svc.Append(ctx, "nobody", domain.NotePayload{Text: "hi"})
	assert.ErrorIs(t, err, activity.ErrContactNotFound)
}

func TestList_NewestFirst(t *testing.T) {
	db := memory.NewDB()
	id := seed(t, db)
	svc := activity.NewService(memory.NewActivityRepo(db), nil, nil)
	ctx := context.Background()

	_, err := svc.Append(ctx, id, domain.CallPayload{Summary: "intro call", DurationSeconds: 120})
	require.NoError(t, err)
	_, err = svc.Append(ctx, id, domain.MeetingPayload{Summary: "site visit"})
	require.NoError(t, err)
	_, err = svc.Append(ctx, id, domain.NotePayload{Text: "sent estimate"})
	require.NoError(t, err)

	list, err := svc.List(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, domain.ActivityNote, list[0].Kind)
	assert.Equal(t, domain.ActivityCall, list[2].Kind)

	call, ok := list[2].Payload.(domain.CallPayload)
	require.True(t, ok)
	assert.Equal(t, 120, call.DurationSeconds)

	list, err = svc.List(ctx, id, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAppend_Forbidden(t *testing.T) {
	db := memory.NewDB()
	id := seed(t, db)
	authz := auth.NewRoleAuthorizer(map[string][]string{"viewer": {}})
	svc := activity.NewService(memory.NewActivityRepo(db), authz, nil)

	ctx := auth.WithIdentity(context.Background(), auth.Identity{UserID: "u", Role: "viewer"})
	_, err := svc.Append(ctx, id, domain.NotePayload{Text: "hi"})
	assert.ErrorIs(t, err, auth.ErrForbidden)

	list, err := svc.List(context.Background(), id, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}
