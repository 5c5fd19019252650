// Package reveal assigns future reveal timestamps to freshly scraped
// results so they surface gradually over a rolling window instead of
// appearing all at once.
package reveal

import (
	"math/rand/v2"
	"time"
)

const (
	// DefaultWindow is the span over which a full-history scrape is
	// drip-released.
	DefaultWindow = 7 * 24 * time.Hour

	// DefaultInterval subdivides the window into fixed-width slots.
	DefaultInterval = 15 * time.Minute
)

// Scheduler distributes items across the reveal window. The zero value is
// not usable; construct with NewScheduler.
type Scheduler struct {
	window   time.Duration
	interval time.Duration
	now      func() time.Time
	rng      *rand.Rand
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithWindow overrides the reveal window.
func WithWindow(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithInterval overrides the interval width.
func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithNow sets a fixed clock for testing.
func WithNow(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithRand sets a seeded random source for deterministic tests.
func WithRand(rng *rand.Rand) SchedulerOption {
	return func(s *Scheduler) {
		s.rng = rng
	}
}

// NewScheduler creates a Scheduler with the default 7-day window and
// 15-minute intervals.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		window:   DefaultWindow,
		interval: DefaultInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Distribute returns a reveal timestamp for each input index. The result
// slice is parallel to the input: out[i] is the reveal time of item i.
//
// Items are shuffled before slot assignment so reveal order does not
// correlate with scrape order. When n exceeds the window's capacity the
// excess piles into the final interval rather than extending the window.
// For any n >= 1 the earliest reveal time equals now.
func (s *Scheduler) Distribute(n int) []time.Time {
	if n <= 0 {
		return nil
	}

	now := s.now().UTC()
	intervals := int(s.window / s.interval)
	if intervals < 1 {
		intervals = 1
	}

	perInterval := n / intervals
	if perInterval < 1 {
		perInterval = 1
	}

	// Uniform permutation of item indices.
	perm := s.perm(n)

	out := make([]time.Time, n)
	for shuffledIdx, itemIdx := range perm {
		slot := shuffledIdx / perInterval
		if slot > intervals-1 {
			slot = intervals - 1
		}
		out[itemIdx] = now.Add(time.Duration(slot) * s.interval)
	}
	return out
}

func (s *Scheduler) perm(n int) []int {
	if s.rng != nil {
		return s.rng.Perm(n)
	}
	return rand.Perm(n)
}
