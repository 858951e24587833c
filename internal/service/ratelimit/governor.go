package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Default caps.
const (
	DefaultHourlyCap = 20
	DefaultDailyCap  = 50
)

// Window names a rate window.
type Window string

const (
	WindowHour Window = "hour"
	WindowDay  Window = "day"
)

// ErrRateLimited matches every *RateLimitError.
var ErrRateLimited = errors.New("send rate limit reached")

// RateLimitError reports which window is exhausted.
type RateLimitError struct {
	Window Window
	Cap    int
	Used   int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s send limit reached (%d/%d)", e.Window, e.Used, e.Cap)
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// Counter counts emails sent since a point in time.
type Counter interface {
	CountSentSince(ctx context.Context, since time.Time) (int, error)
}

// Recorder is implemented by counters that track sends incrementally
// instead of deriving them from recipient state.
type Recorder interface {
	RecordSent(ctx context.Context, id string, at time.Time) error
}

// Limits are the per-window caps.
type Limits struct {
	Hourly int `yaml:"hourly_cap"`
	Daily  int `yaml:"daily_cap"`
}

// Capacity is the outcome of a successful check.
type Capacity struct {
	Remaining int `json:"remaining"`
	HourUsed  int `json:"hour_used"`
	DayUsed   int `json:"day_used"`
}

// Governor checks send capacity against the hourly and daily caps. It holds
// no state of its own and is safe for concurrent use.
type Governor struct {
	counter Counter
	limits  Limits
	now     func() time.Time
}

// NewGovernor creates a governor. Non-positive caps fall back to the defaults.
func NewGovernor(counter Counter, limits Limits) *Governor {
	if limits.Hourly <= 0 {
		limits.Hourly = DefaultHourlyCap
	}
	if limits.Daily <= 0 {
		limits.Daily = DefaultDailyCap
	}
	return &Governor{counter: counter, limits: limits, now: time.Now}
}

// Limits returns the effective caps.
func (g *Governor) Limits() Limits { return g.limits }

// CheckCapacity returns how many more emails may be sent right now, or a
// *RateLimitError naming the exhausted window. The hour is checked first.
func (g *Governor) CheckCapacity(ctx context.Context) (Capacity, error) {
	now := g.now()
	hour, err := g.counter.CountSentSince(ctx, now.Add(-time.Hour))
	if err != nil {
		return Capacity{}, fmt.Errorf("count hourly sends: %w", err)
	}
	day, err := g.counter.CountSentSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return Capacity{}, fmt.Errorf("count daily sends: %w", err)
	}

	capacity := Capacity{HourUsed: hour, DayUsed: day}
	if hour >= g.limits.Hourly {
		return capacity, &RateLimitError{Window: WindowHour, Cap: g.limits.Hourly, Used: hour}
	}
	if day >= g.limits.Daily {
		return capacity, &RateLimitError{Window: WindowDay, Cap: g.limits.Daily, Used: day}
	}
	capacity.Remaining = min(g.limits.Hourly-hour, g.limits.Daily-day)
	return capacity, nil
}

// RecordSent notifies incremental counters of a successful send. Counters
// that derive their counts from recipient state ignore it.
func (g *Governor) RecordSent(ctx context.Context, id string, at time.Time) error {
	if r, ok := g.counter.(Recorder); ok {
		return r.RecordSent(ctx, id, at)
	}
	return nil
}
