package research

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/reachloop/research-core/internal/model"
	"github.com/reachloop/research-core/internal/store"
)

// ResultsOutcome is one page of revealed results.
type ResultsOutcome struct {
	Success      bool                   `json:"success"`
	Results      []model.ResearchResult `json:"results"`
	Total        int                    `json:"total"`
	NextRevealAt *time.Time             `json:"next_reveal_at,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

// StatsOutcome is the research dashboard summary.
type StatsOutcome struct {
	Success bool                 `json:"success"`
	Stats   *model.ResearchStats `json:"stats,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// GetRevealedResults returns results whose reveal time has passed, best
// relevance first. Unrevealed rows never leave the store.
func (s *Service) GetRevealedResults(ctx context.Context, businessID, platform string, limit, offset int) (*ResultsOutcome, error) {
	page, err := s.store.ListRevealedResults(ctx, store.ResultFilter{
		BusinessID: businessID,
		Platform:   platform,
		Limit:      limit,
		Offset:     offset,
		Now:        s.now(),
	})
	if err != nil {
		wrapped := eris.Wrap(err, "research: list revealed results")
		return &ResultsOutcome{Error: wrapped.Error()}, wrapped
	}
	return &ResultsOutcome{
		Success:      true,
		Results:      page.Results,
		Total:        page.Total,
		NextRevealAt: page.NextRevealAt,
	}, nil
}

// GetResearchStats summarizes totals, reveal progress and run recency.
func (s *Service) GetResearchStats(ctx context.Context, businessID string) (*StatsOutcome, error) {
	stats, err := s.store.GetResearchStats(ctx, businessID, s.now())
	if err != nil {
		wrapped := eris.Wrap(err, "research: load stats")
		return &StatsOutcome{Error: wrapped.Error()}, wrapped
	}
	return &StatsOutcome{Success: true, Stats: stats}, nil
}
