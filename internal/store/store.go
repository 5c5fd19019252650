package store

import (
	"context"
	"time"

	"github.com/reachloop/research-core/internal/model"
)

// ResultFilter specifies criteria for listing revealed results.
type ResultFilter struct {
	BusinessID string    `json:"business_id"`
	Platform   string    `json:"platform,omitempty"`
	Limit      int       `json:"limit,omitempty"`
	Offset     int       `json:"offset,omitempty"`
	Now        time.Time `json:"-"`
}

func (f ResultFilter) now() time.Time {
	if f.Now.IsZero() {
		return time.Now().UTC()
	}
	return f.Now
}

// ResultPage is one page of revealed results plus pagination metadata.
type ResultPage struct {
	Results      []model.ResearchResult `json:"results"`
	Total        int                    `json:"total"`
	NextRevealAt *time.Time             `json:"next_reveal_at,omitempty"`
}

// Store defines the persistence interface for the research pipeline.
type Store interface {
	// Businesses
	CreateBusiness(ctx context.Context, b model.Business) (*model.Business, error)
	GetBusiness(ctx context.Context, id string) (*model.Business, error)
	UpdateBusinessTargets(ctx context.Context, id string, targets []model.ResearchTarget) error
	// FulfillTarget marks the target at index fulfilled under a row lock,
	// recording the cache entry that satisfied it. It fails if the target
	// is already fulfilled.
	FulfillTarget(ctx context.Context, businessID string, index int, cacheID string, resultCount int) error

	// Runs
	CreateRun(ctx context.Context, businessID string, runType model.RunType, keywords []string) (*model.ResearchRun, error)
	CompleteRun(ctx context.Context, runID string, itemCount int) error
	FailRun(ctx context.Context, runID string, reason string) error
	GetRun(ctx context.Context, runID string) (*model.ResearchRun, error)

	// Results
	InsertResults(ctx context.Context, results []model.ResearchResult) (int, error)
	ListRevealedResults(ctx context.Context, filter ResultFilter) (*ResultPage, error)
	ListUnscoredResults(ctx context.Context, runID string) ([]model.ResearchResult, error)
	// SetRelevanceScore writes the score only if none has been written yet,
	// and reports whether the row was updated.
	SetRelevanceScore(ctx context.Context, resultID string, score float64) (bool, error)
	GetResearchStats(ctx context.Context, businessID string, now time.Time) (*model.ResearchStats, error)

	// Lead cache
	GetLeadCache(ctx context.Context, cacheKey string) (*model.LeadCache, error)
	UpsertLeadCache(ctx context.Context, entry model.LeadCache) (*model.LeadCache, error)
	DeleteExpiredLeadCaches(ctx context.Context) (int, error)

	// Scrapes and leads
	InsertRawScrape(ctx context.Context, rs model.RawScrape) (*model.RawScrape, error)
	InsertVerifiedLeads(ctx context.Context, leads []model.VerifiedLead) (int, error)
	CountLeadsByCache(ctx context.Context, cacheID string) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
