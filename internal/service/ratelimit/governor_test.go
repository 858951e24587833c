package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCounter counts a fixed list of send times.
type fakeCounter struct {
	sent []time.Time
	err  error
}

func (f *fakeCounter) CountSentSince(_ context.Context, since time.Time) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	n := 0
	for _, t := range f.sent {
		if !t.Before(since) {
			n++
		}
	}
	return n, nil
}

func sentAgo(now time.Time, n int, ago time.Duration) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = now.Add(-ago)
	}
	return out
}

func newTestGovernor(c Counter, now time.Time) *Governor {
	g := NewGovernor(c, Limits{Hourly: 20, Daily: 50})
	g.now = func() time.Time { return now }
	return g
}

func TestCheckCapacity_HourExhausted(t *testing.T) {
	now := time.Now()
	g := newTestGovernor(&fakeCounter{sent: sentAgo(now, 20, 10*time.Minute)}, now)

	_, err := g.CheckCapacity(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimited))

	var rl *RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, WindowHour, rl.Window)
	assert.Equal(t, 20, rl.Used)
}

func TestCheckCapacity_DayExhausted(t *testing.T) {
	now := time.Now()
	g := newTestGovernor(&fakeCounter{sent: sentAgo(now, 50, 3*time.Hour)}, now)

	_, err := g.CheckCapacity(context.Background())
	var rl *RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, WindowDay, rl.Window)
}

func TestCheckCapacity_HourCheckedFirst(t *testing.T) {
	now := time.Now()
	g := newTestGovernor(&fakeCounter{sent: sentAgo(now, 60, time.Minute)}, now)

	_, err := g.CheckCapacity(context.Background())
	var rl *RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, WindowHour, rl.Window)
}

func TestCheckCapacity_Remaining(t *testing.T) {
	now := time.Now()
	sent := append(sentAgo(now, 5, time.Minute), sentAgo(now, 40, 5*time.Hour)...)
	g := newTestGovernor(&fakeCounter{sent: sent}, now)

	c, err := g.CheckCapacity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, c.HourUsed)
	assert.Equal(t, 45, c.DayUsed)
	assert.Equal(t, 5, c.Remaining) // day leaves 5, hour leaves 15
}

func TestCheckCapacity_OldSendsIgnored(t *testing.T) {
	now := time.Now()
	g := newTestGovernor(&fakeCounter{sent: sentAgo(now, 100, 25*time.Hour)}, now)

	c, err := g.CheckCapacity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, c.Remaining)
}

func TestCheckCapacity_CounterError(t *testing.T) {
	g := newTestGovernor(&fakeCounter{err: errors.New("db down")}, time.Now())
	_, err := g.CheckCapacity(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrRateLimited))
}

func TestNewGovernor_Defaults(t *testing.T) {
	g := NewGovernor(&fakeCounter{}, Limits{})
	assert.Equal(t, Limits{Hourly: DefaultHourlyCap, Daily: DefaultDailyCap}, g.Limits())
}
