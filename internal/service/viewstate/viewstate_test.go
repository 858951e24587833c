package viewstate

import (
	"context"
	"testing"
	"time"

	"github.com/ignite/construction-crm/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTouchAndGet(t *testing.T) {
	svc := NewService(memory.NewViewStateRepo(memory.NewDB()))
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return at }
	ctx := context.Background()

	st, err := svc.Get(ctx, "u-1", "contacts")
	require.NoError(t, err)
	assert.True(t, st.LastViewedAt.IsZero())

	_, err = svc.Touch(ctx, "u-1", " Contacts ")
	require.NoError(t, err)

	st, err = svc.Get(ctx, "u-1", "contacts")
	require.NoError(t, err)
	assert.Equal(t, at, st.LastViewedAt)

	other, err := svc.Get(ctx, "u-2", "contacts")
	require.NoError(t, err)
	assert.True(t, other.LastViewedAt.IsZero())

	later := at.Add(time.Hour)
	svc.now = func() time.Time { return later }
	_, err = svc.Touch(ctx, "u-1", "contacts")
	require.NoError(t, err)
	st, err = svc.Get(ctx, "u-1", "contacts")
	require.NoError(t, err)
	assert.Equal(t, later, st.LastViewedAt)
}

func TestBlankKeyRejected(t *testing.T) {
	svc := NewService(memory.NewViewStateRepo(memory.NewDB()))
	_, err := svc.Touch(context.Background(), "", "contacts")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Get(context.Background(), "u", " ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
