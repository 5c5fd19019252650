package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/reachloop/research-core/internal/leads"
	"github.com/reachloop/research-core/internal/research"
	"github.com/reachloop/research-core/internal/scorer"
	"github.com/reachloop/research-core/internal/store"
	"github.com/reachloop/research-core/pkg/apify"
	"github.com/reachloop/research-core/pkg/openai"
	"github.com/reachloop/research-core/pkg/verifier"
)

// serviceEnv holds the initialized store and research service shared by the
// serve/research/leads commands.
type serviceEnv struct {
	Store   store.Store
	Service *research.Service
}

// Close drains background work and releases the store.
func (e *serviceEnv) Close() {
	if e.Service != nil {
		e.Service.Wait()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "research-core.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initService sets up the store, API clients and the research service.
// Callers should defer env.Close().
func initService(ctx context.Context, mode string) (*serviceEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	source := apify.NewClient(cfg.Apify.Key, apify.WithBaseURL(cfg.Apify.BaseURL))
	gate := leads.NewGate(verifier.NewClient(cfg.Verifier.Key, verifier.WithBaseURL(cfg.Verifier.BaseURL)))

	embedder := openai.NewClient(cfg.OpenAI.Key,
		openai.WithBaseURL(cfg.OpenAI.BaseURL),
		openai.WithModel(cfg.OpenAI.Model))
	sc := scorer.New(st, embedder,
		scorer.WithBatchSize(cfg.Research.ScoreBatchSize),
		scorer.WithBatchDelay(time.Duration(cfg.Research.ScoreBatchDelayMs)*time.Millisecond),
		scorer.WithMaxChars(cfg.Research.ScoreMaxChars))

	svc := research.NewService(st, source, gate, sc, research.Config{
		Platform:            cfg.Research.Platform,
		ContentActor:        cfg.Apify.ContentActor,
		ListingActor:        cfg.Apify.ListingActor,
		MaxKeywords:         cfg.Research.MaxKeywords,
		RevealWindow:        time.Duration(cfg.Research.RevealWindowHours) * time.Hour,
		WeeklyWindow:        time.Duration(cfg.Research.WeeklyWindowHours) * time.Hour,
		RevealInterval:      time.Duration(cfg.Research.RevealIntervalMins) * time.Minute,
		CacheTTL:            time.Duration(cfg.Research.CacheTTLHours) * time.Hour,
		DefaultLeadIndustry: cfg.Research.DefaultLeadIndustry,
		RunTimeout:          time.Duration(cfg.Apify.RunTimeoutSecs) * time.Second,
	})

	return &serviceEnv{Store: st, Service: svc}, nil
}
