// Package scorer ranks research results by semantic similarity to the
// business profile. Scores are written once per result; a failed item is
// left unscored and picked up by the next pass.
package scorer

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/reachloop/research-core/internal/model"
	"github.com/reachloop/research-core/pkg/openai"
)

// resultStore is the slice of the persistence layer the scorer needs.
type resultStore interface {
	ListUnscoredResults(ctx context.Context, runID string) ([]model.ResearchResult, error)
	SetRelevanceScore(ctx context.Context, resultID string, score float64) (bool, error)
}

// Result summarizes one scoring pass.
type Result struct {
	Scored  int `json:"scored"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Scorer embeds result text and persists a relevance score in [0, 1].
type Scorer struct {
	store      resultStore
	embedder   openai.Client
	batchSize  int
	batchDelay time.Duration
	maxChars   int
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithBatchSize sets how many results are embedded concurrently per batch.
func WithBatchSize(n int) Option {
	return func(s *Scorer) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithBatchDelay sets the pause between embedding batches.
func WithBatchDelay(d time.Duration) Option {
	return func(s *Scorer) {
		if d > 0 {
			s.batchDelay = d
		}
	}
}

// WithMaxChars caps how much result text is sent to the embedding model.
func WithMaxChars(n int) Option {
	return func(s *Scorer) {
		if n > 0 {
			s.maxChars = n
		}
	}
}

// New creates a Scorer with default batching.
func New(store resultStore, embedder openai.Client, opts ...Option) *Scorer {
	s := &Scorer{
		store:      store,
		embedder:   embedder,
		batchSize:  20,
		batchDelay: time.Second,
		maxChars:   2000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScoreRun scores every unscored result of the given run against the
// business profile. The profile is embedded once; each result embedding
// failure is isolated so one bad item cannot abort the pass.
func (s *Scorer) ScoreRun(ctx context.Context, business model.Business, runID string) (*Result, error) {
	profile := business.ProfileText()
	if strings.TrimSpace(profile) == "" {
		return nil, eris.Errorf("scorer: business %s has an empty profile", business.ID)
	}

	baseVec, err := s.embedder.Embed(ctx, truncate(profile, s.maxChars))
	if err != nil {
		return nil, eris.Wrap(err, "scorer: embed business profile")
	}

	unscored, err := s.store.ListUnscoredResults(ctx, runID)
	if err != nil {
		return nil, eris.Wrap(err, "scorer: list unscored results")
	}
	if len(unscored) == 0 {
		return &Result{}, nil
	}

	res := &Result{}
	var mu sync.Mutex
	limiter := rate.NewLimiter(rate.Every(s.batchDelay), 1)

	for start := 0; start < len(unscored); start += s.batchSize {
		if err := limiter.Wait(ctx); err != nil {
			return res, eris.Wrap(err, "scorer: wait for batch slot")
		}
		end := start + s.batchSize
		if end > len(unscored) {
			end = len(unscored)
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, r := range unscored[start:end] {
			g.Go(func() error {
				outcome := s.scoreOne(gctx, baseVec, r)
				mu.Lock()
				switch outcome {
				case outcomeScored:
					res.Scored++
				case outcomeSkipped:
					res.Skipped++
				case outcomeFailed:
					res.Failed++
				}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait() // workers report through res, never through errors
	}

	zap.L().Info("scoring pass complete",
		zap.String("run_id", runID),
		zap.Int("scored", res.Scored),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed))
	return res, nil
}

type outcome int

const (
	outcomeScored outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (s *Scorer) scoreOne(ctx context.Context, baseVec []float64, r model.ResearchResult) outcome {
	text := resultText(r)
	if text == "" {
		return outcomeSkipped
	}

	vec, err := s.embedder.Embed(ctx, truncate(text, s.maxChars))
	if err != nil {
		zap.L().Warn("result embedding failed",
			zap.String("result_id", r.ID), zap.Error(err))
		return outcomeFailed
	}

	sim, ok := cosine(baseVec, vec)
	if !ok {
		zap.L().Warn("degenerate embedding, skipping result",
			zap.String("result_id", r.ID))
		return outcomeSkipped
	}

	// Cosine lands in [-1, 1]; rescale to [0, 1] for storage and ranking.
	score := (sim + 1) / 2
	updated, err := s.store.SetRelevanceScore(ctx, r.ID, score)
	if err != nil {
		zap.L().Warn("score persistence failed",
			zap.String("result_id", r.ID), zap.Error(err))
		return outcomeFailed
	}
	if !updated {
		return outcomeSkipped
	}
	return outcomeScored
}

func resultText(r model.ResearchResult) string {
	title := strings.TrimSpace(r.Title)
	body := strings.TrimSpace(r.Body)
	switch {
	case title == "":
		return body
	case body == "":
		return title
	default:
		return title + "\n\n" + body
	}
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// cosine returns the cosine similarity of two vectors, or false when either
// vector is zero-length or degenerate.
func cosine(a, b []float64) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Floating point can nudge past the bounds.
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return sim, true
}
