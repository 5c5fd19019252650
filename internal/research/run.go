package research

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/reachloop/research-core/internal/model"
	"github.com/reachloop/research-core/internal/resilience"
	"github.com/reachloop/research-core/internal/reveal"
	"github.com/reachloop/research-core/pkg/apify"
)

// RunOutcome reports one research run to callers. Error carries the
// boundary-converted failure when Success is false.
type RunOutcome struct {
	Success  bool     `json:"success"`
	RunID    string   `json:"run_id,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
	Scraped  int      `json:"scraped"`
	Filtered int      `json:"filtered"`
	Inserted int      `json:"inserted"`
	Error    string   `json:"error,omitempty"`
}

// contentInput is the actor input for one keyword search.
type contentInput struct {
	SearchTerm string `json:"searchTerm"`
	Sort       string `json:"sort"`
	Time       string `json:"time"`
}

// RunInitial scrapes the full history for every keyword and spreads the
// reveal times over the long window.
func (s *Service) RunInitial(ctx context.Context, businessID string) (*RunOutcome, error) {
	return s.runResearch(ctx, businessID, model.RunTypeInitial)
}

// RunIncremental scrapes the last week for every keyword and spreads the
// reveal times over the short window.
func (s *Service) RunIncremental(ctx context.Context, businessID string) (*RunOutcome, error) {
	return s.runResearch(ctx, businessID, model.RunTypeIncremental)
}

func (s *Service) runResearch(ctx context.Context, businessID string, runType model.RunType) (*RunOutcome, error) {
	fail := func(err error) (*RunOutcome, error) {
		return &RunOutcome{Error: err.Error()}, err
	}

	biz, err := s.store.GetBusiness(ctx, businessID)
	if err != nil {
		return fail(eris.Wrap(err, "research: load business"))
	}
	if !biz.Subscription.Entitled() {
		return fail(ErrNoEntitlement)
	}
	if !biz.SourceEnabled {
		return fail(ErrSourceDisabled)
	}
	keywords := usableKeywords(biz.Keywords)
	if len(keywords) == 0 {
		return fail(ErrNoKeywords)
	}
	if len(keywords) > s.cfg.MaxKeywords {
		zap.L().Info("keyword list capped",
			zap.String("business_id", businessID),
			zap.Int("configured", len(keywords)),
			zap.Int("cap", s.cfg.MaxKeywords))
		keywords = keywords[:s.cfg.MaxKeywords]
	}

	run, err := s.store.CreateRun(ctx, businessID, runType, keywords)
	if err != nil {
		return fail(eris.Wrap(err, "research: create run"))
	}

	items, failedKeywords := s.scrapeKeywords(ctx, keywords, runType)
	if failedKeywords == len(keywords) {
		err := eris.New("research: every keyword scrape failed")
		if ferr := s.store.FailRun(ctx, run.ID, err.Error()); ferr != nil {
			zap.L().Error("run failure not recorded", zap.String("run_id", run.ID), zap.Error(ferr))
		}
		return fail(err)
	}

	posts, filtered := filterComments(items)

	window := s.cfg.RevealWindow
	if runType == model.RunTypeIncremental {
		window = s.cfg.WeeklyWindow
	}
	schedOpts := []reveal.SchedulerOption{
		reveal.WithWindow(window),
		reveal.WithInterval(s.cfg.RevealInterval),
		reveal.WithNow(s.now),
	}
	if s.rng != nil {
		schedOpts = append(schedOpts, reveal.WithRand(s.rng))
	}
	revealTimes := reveal.NewScheduler(schedOpts...).Distribute(len(posts))

	results := make([]model.ResearchResult, 0, len(posts))
	for i, item := range posts {
		raw, err := json.Marshal(item)
		if err != nil {
			zap.L().Warn("item not serializable, raw payload dropped",
				zap.String("external_id", item.ID), zap.Error(err))
			raw = nil
		}
		results = append(results, model.ResearchResult{
			BusinessID: businessID,
			RunID:      run.ID,
			Platform:   s.cfg.Platform,
			ExternalID: item.ID,
			Title:      item.Title,
			Body:       item.Body,
			URL:        item.URL,
			Score:      item.Score,
			Raw:        raw,
			RevealAt:   revealTimes[i],
		})
	}

	inserted, err := s.store.InsertResults(ctx, results)
	if err != nil {
		wrapped := eris.Wrap(err, "research: insert results")
		if ferr := s.store.FailRun(ctx, run.ID, wrapped.Error()); ferr != nil {
			zap.L().Error("run failure not recorded", zap.String("run_id", run.ID), zap.Error(ferr))
		}
		return fail(wrapped)
	}
	if err := s.store.CompleteRun(ctx, run.ID, inserted); err != nil {
		return fail(eris.Wrap(err, "research: complete run"))
	}

	zap.L().Info("research run complete",
		zap.String("business_id", businessID),
		zap.String("run_id", run.ID),
		zap.String("type", string(runType)),
		zap.Int("scraped", len(items)),
		zap.Int("filtered", filtered),
		zap.Int("inserted", inserted))

	if s.scorer != nil {
		s.bg.Add(1)
		go s.scoreDetached(*biz, run.ID)
	}

	return &RunOutcome{
		Success:  true,
		RunID:    run.ID,
		Keywords: keywords,
		Scraped:  len(items),
		Filtered: filtered,
		Inserted: inserted,
	}, nil
}

// scrapeKeywords fans one actor run out per keyword. A failed keyword
// contributes zero items; only the count of failures is reported so the
// caller can tell a total outage from a partial one.
func (s *Service) scrapeKeywords(ctx context.Context, keywords []string, runType model.RunType) ([]apify.Item, int) {
	timeFilter := "all"
	if runType == model.RunTypeIncremental {
		timeFilter = "week"
	}

	var (
		mu     sync.Mutex
		items  []apify.Item
		failed int
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, kw := range keywords {
		g.Go(func() error {
			input := contentInput{SearchTerm: kw, Sort: "new", Time: timeFilter}
			res, err := resilience.DoVal(gctx, s.retry, func(ctx context.Context) (*apify.RunResult, error) {
				return apify.CollectRun(ctx, s.source, s.cfg.ContentActor, input, s.pollOpts()...)
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				zap.L().Warn("keyword scrape failed",
					zap.String("keyword", kw), zap.Error(err))
				return nil
			}
			items = append(items, res.Items...)
			return nil
		})
	}
	_ = g.Wait() // workers swallow their own errors
	return items, failed
}

func (s *Service) pollOpts() []apify.PollOption {
	if s.cfg.RunTimeout <= 0 {
		return nil
	}
	return []apify.PollOption{apify.WithPollTimeout(s.cfg.RunTimeout)}
}

func (s *Service) scoreDetached(biz model.Business, runID string) {
	defer s.bg.Done()
	// Detached from the request: scoring keeps going after the caller
	// returns, bounded by its own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if _, err := s.scorer.ScoreRun(ctx, biz, runID); err != nil {
		zap.L().Error("post-run scoring failed",
			zap.String("business_id", biz.ID),
			zap.String("run_id", runID),
			zap.Error(err))
	}
}

func usableKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if strings.TrimSpace(kw) == "" {
			continue
		}
		out = append(out, kw)
	}
	return out
}

// filterComments keeps posts and untyped items; comment items carry no
// standalone context worth revealing.
func filterComments(items []apify.Item) ([]apify.Item, int) {
	posts := make([]apify.Item, 0, len(items))
	filtered := 0
	for _, item := range items {
		if item.Type == "comment" {
			filtered++
			continue
		}
		posts = append(posts, item)
	}
	return posts, filtered
}
