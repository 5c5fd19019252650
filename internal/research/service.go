// Package research orchestrates the scraping, scheduling and lead pipelines
// for a business. All entry points fail closed: nothing is scraped or
// written for a business that is not entitled to it.
package research

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/reachloop/research-core/internal/leads"
	"github.com/reachloop/research-core/internal/model"
	"github.com/reachloop/research-core/internal/resilience"
	"github.com/reachloop/research-core/internal/scorer"
	"github.com/reachloop/research-core/internal/store"
	"github.com/reachloop/research-core/pkg/apify"
)

var (
	// ErrNoEntitlement means the subscription does not permit research.
	ErrNoEntitlement = eris.New("research: subscription not entitled")
	// ErrSourceDisabled means the business opted out of the content source.
	ErrSourceDisabled = eris.New("research: content source disabled")
	// ErrNoKeywords means the business has no usable keywords configured.
	ErrNoKeywords = eris.New("research: business has no keywords")
)

// Config holds the orchestrator's tuning knobs.
type Config struct {
	Platform            string
	ContentActor        string
	ListingActor        string
	MaxKeywords         int
	RevealWindow        time.Duration
	WeeklyWindow        time.Duration
	RevealInterval      time.Duration
	CacheTTL            time.Duration
	DefaultLeadIndustry string
	RunTimeout          time.Duration
}

func (c *Config) applyDefaults() {
	if c.Platform == "" {
		c.Platform = "reddit"
	}
	if c.MaxKeywords <= 0 {
		c.MaxKeywords = 5
	}
	if c.RevealWindow <= 0 {
		c.RevealWindow = 7 * 24 * time.Hour
	}
	if c.WeeklyWindow <= 0 {
		c.WeeklyWindow = 24 * time.Hour
	}
	if c.RevealInterval <= 0 {
		c.RevealInterval = 15 * time.Minute
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 4380 * time.Hour
	}
	if c.DefaultLeadIndustry == "" {
		c.DefaultLeadIndustry = "general"
	}
}

// Scorer is the slice of the scoring pipeline the service triggers after a
// run completes.
type Scorer interface {
	ScoreRun(ctx context.Context, business model.Business, runID string) (*scorer.Result, error)
}

// Service wires the store, content source, verification gate and scorer
// into the research operations.
type Service struct {
	store  store.Store
	source apify.Client
	gate   *leads.Gate
	scorer Scorer
	cfg    Config
	retry  resilience.Policy

	now func() time.Time
	rng *rand.Rand

	bg sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithNow injects the clock, primarily for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRand injects the randomness source used for reveal shuffling.
func WithRand(rng *rand.Rand) Option {
	return func(s *Service) { s.rng = rng }
}

// WithRetryPolicy overrides the retry policy for external calls.
func WithRetryPolicy(p resilience.Policy) Option {
	return func(s *Service) { s.retry = p }
}

// NewService creates a research Service. A nil scorer disables the
// post-run scoring pass.
func NewService(st store.Store, source apify.Client, gate *leads.Gate, sc Scorer, cfg Config, opts ...Option) *Service {
	cfg.applyDefaults()
	s := &Service{
		store:  st,
		source: source,
		gate:   gate,
		scorer: sc,
		cfg:    cfg,
		retry:  resilience.DefaultPolicy(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	s.retry.OnRetry = resilience.RetryLogger("apify", "collect run")
	s.retry.ShouldRetry = func(err error) bool {
		var apiErr *apify.APIError
		if eris.As(err, &apiErr) {
			return resilience.IsTransientHTTPStatus(apiErr.StatusCode)
		}
		return resilience.IsTransient(err)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Wait blocks until detached background tasks (post-run scoring) finish.
// Call it on shutdown so in-flight scoring is not dropped.
func (s *Service) Wait() {
	s.bg.Wait()
}
