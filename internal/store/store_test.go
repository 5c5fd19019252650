package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachloop/research-core/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedBusiness(t *testing.T, s Store, b model.Business) *model.Business {
	t.Helper()
	if b.Name == "" {
		b.Name = "Acme Outreach"
	}
	if b.Subscription == "" {
		b.Subscription = model.SubscriptionActive
	}
	created, err := s.CreateBusiness(context.Background(), b)
	require.NoError(t, err)
	return created
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndGetBusiness", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		b := seedBusiness(t, s, model.Business{
			Name:           "Acme Outreach",
			Description:    "Cold outreach automation",
			TargetAudience: "B2B sales teams",
			Industry:       "martech",
			Keywords:       []string{"cold email", "outreach"},
			SourceEnabled:  true,
			Targets: []model.ResearchTarget{
				{Industry: "plumbing", Country: "US", State: "TX", City: "Austin"},
			},
		})
		assert.NotEmpty(t, b.ID)

		got, err := s.GetBusiness(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, "Acme Outreach", got.Name)
		assert.Equal(t, model.SubscriptionActive, got.Subscription)
		assert.Equal(t, []string{"cold email", "outreach"}, got.Keywords)
		require.Len(t, got.Targets, 1)
		assert.Equal(t, "plumbing", got.Targets[0].Industry)
		assert.False(t, got.Targets[0].Fulfilled())
	})

	t.Run("GetBusinessNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetBusiness(context.Background(), "nonexistent-id")
		require.Error(t, err)
	})

	t.Run("UpdateBusinessTargets", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		b := seedBusiness(t, s, model.Business{})
		err := s.UpdateBusinessTargets(ctx, b.ID, []model.ResearchTarget{
			{Industry: "roofing", Country: "US"},
			{Industry: "hvac", Country: "US", State: "FL"},
		})
		require.NoError(t, err)

		got, err := s.GetBusiness(ctx, b.ID)
		require.NoError(t, err)
		require.Len(t, got.Targets, 2)
		assert.Equal(t, "hvac", got.Targets[1].Industry)
	})

	t.Run("UpdateBusinessTargetsNotFound", func(t *testing.T) {
		s := newStore(t)
		err := s.UpdateBusinessTargets(context.Background(), "missing", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("FulfillTarget", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		b := seedBusiness(t, s, model.Business{
			Targets: []model.ResearchTarget{
				{Industry: "plumbing", Country: "US"},
				{Industry: "roofing", Country: "US"},
			},
		})

		err := s.FulfillTarget(ctx, b.ID, 1, "cache-123", 42)
		require.NoError(t, err)

		got, err := s.GetBusiness(ctx, b.ID)
		require.NoError(t, err)
		assert.False(t, got.Targets[0].Fulfilled())
		require.True(t, got.Targets[1].Fulfilled())
		assert.Equal(t, "cache-123", got.Targets[1].CacheID)
		assert.Equal(t, 42, got.Targets[1].ResultCount)
	})

	t.Run("FulfillTargetAlreadyFulfilled", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		b := seedBusiness(t, s, model.Business{
			Targets: []model.ResearchTarget{{Industry: "plumbing", Country: "US"}},
		})
		require.NoError(t, s.FulfillTarget(ctx, b.ID, 0, "cache-1", 10))

		err := s.FulfillTarget(ctx, b.ID, 0, "cache-2", 99)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already fulfilled")

		// First write wins.
		got, err := s.GetBusiness(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, "cache-1", got.Targets[0].CacheID)
	})

	t.Run("FulfillTargetIndexOutOfRange", func(t *testing.T) {
		s := newStore(t)
		b := seedBusiness(t, s, model.Business{
			Targets: []model.ResearchTarget{{Industry: "plumbing", Country: "US"}},
		})
		err := s.FulfillTarget(context.Background(), b.ID, 3, "cache-1", 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "out of range")
	})

	t.Run("RunLifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		b := seedBusiness(t, s, model.Business{})
		run, err := s.CreateRun(ctx, b.ID, model.RunTypeInitial, []string{"crm", "outreach"})
		require.NoError(t, err)
		assert.NotEmpty(t, run.ID)
		assert.Equal(t, model.RunStatusRunning, run.Status)

		require.NoError(t, s.CompleteRun(ctx, run.ID, 37))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusCompleted, got.Status)
		assert.Equal(t, 37, got.ItemCount)
		assert.Equal(t, []string{"crm", "outreach"}, got.Keywords)
		require.NotNil(t, got.CompletedAt)
	})

	t.Run("FailRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		b := seedBusiness(t, s, model.Business{})
		run, err := s.CreateRun(ctx, b.ID, model.RunTypeIncremental, nil)
		require.NoError(t, err)

		require.NoError(t, s.FailRun(ctx, run.ID, "actor timed out"))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusFailed, got.Status)
		assert.Equal(t, "actor timed out", got.Error)
	})

	t.Run("CompleteRunNotFound", func(t *testing.T) {
		s := newStore(t)
		err := s.CompleteRun(context.Background(), "missing-run", 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("InsertResultsDeduplicates", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		b := seedBusiness(t, s, model.Business{})
		run, err := s.CreateRun(ctx, b.ID, model.RunTypeInitial, nil)
		require.NoError(t, err)

		reveal := time.Now().UTC().Add(time.Hour)
		batch := []model.ResearchResult{
			{BusinessID: b.ID, RunID: run.ID, Platform: "reddit", ExternalID: "t3_aaa", Title: "first", RevealAt: reveal},
			{BusinessID: b.ID, RunID: run.ID, Platform: "reddit", ExternalID: "t3_bbb", Title: "second", RevealAt: reveal},
		}
		n, err := s.InsertResults(ctx, batch)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		// Re-inserting the same external ids is a no-op.
		n, err = s.InsertResults(ctx, batch)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("ListRevealedResults", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		b := seedBusiness(t, s, model.Business{})
		run, err := s.CreateRun(ctx, b.ID, model.RunTypeInitial, nil)
		require.NoError(t, err)

		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		_, err = s.InsertResults(ctx, []model.ResearchResult{
			{BusinessID: b.ID, RunID: run.ID, Platform: "reddit", ExternalID: "t3_past", Title: "revealed", RevealAt: now.Add(-time.Hour)},
			{BusinessID: b.ID, RunID: run.ID, Platform: "reddit", ExternalID: "t3_now", Title: "boundary", RevealAt: now},
			{BusinessID: b.ID, RunID: run.ID, Platform: "reddit", ExternalID: "t3_future", Title: "hidden", RevealAt: now.Add(2 * time.Hour)},
		})
		require.NoError(t, err)

		page, err := s.ListRevealedResults(ctx, ResultFilter{BusinessID: b.ID, Now: now})
		require.NoError(t, err)
		assert.Equal(t, 2, page.Total)
		require.Len(t, page.Results, 2)
		for _, r := range page.Results {
			assert.False(t, r.RevealAt.After(now))
		}
		require.NotNil(t, page.NextRevealAt)
		assert.Equal(t, now.Add(2*time.Hour).Unix(), page.NextRevealAt.Unix())
	})

	t.Run("ListRevealedResultsOrdersByRelevance", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		b := seedBusiness(t, s, model.Business{})
		run, err := s.CreateRun(ctx, b.ID, model.RunTypeInitial, nil)
		require.NoError(t, err)

		now := time.Now().UTC()
		results := []model.ResearchResult{
			{ID: "r-low", BusinessID: b.ID, RunID: run.ID, Platform: "reddit", ExternalID: "t3_1", RevealAt: now.Add(-3 * time.Hour)},
			{ID: "r-high", BusinessID: b.ID, RunID: run.ID, Platform: "reddit", ExternalID: "t3_2", RevealAt: now.Add(-2 * time.Hour)},
			{ID: "r-unscored", BusinessID: b.ID, RunID: run.ID, Platform: "reddit", ExternalID: "t3_3", RevealAt: now.Add(-time.Hour)},
		}
		_, err = s.InsertResults(ctx, results)
		require.NoError(t, err)

		_, err = s.SetRelevanceScore(ctx, "r-low", 0.2)
		require.NoError(t, err)
		_, err = s.SetRelevanceScore(ctx, "r-high", 0.9)
		require.NoError(t, err)

		page, err := s.ListRevealedResults(ctx, ResultFilter{BusinessID: b.ID, Now: now})
		require.NoError(t, err)
		require.Len(t, page.Results, 3)
		assert.Equal(t, "r-high", page.Results[0].ID)
		assert.Equal(t, "r-low", page.Results[1].ID)
		assert.Equal(t, "r-unscored", page.Results[2].ID)
	})

	t.Run("SetRelevanceScoreOnlyOnce", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		b := seedBusiness(t, s, model.Business{})
		run, err := s.CreateRun(ctx, b.ID, model.RunTypeInitial, nil)
		require.NoError(t, err)
		_, err = s.InsertResults(ctx, []model.ResearchResult{
			{ID: "r-1", BusinessID: b.ID, RunID: run.ID, Platform: "reddit", ExternalID: "t3_x", RevealAt: time.Now().UTC()},
		})
		require.NoError(t, err)

		updated, err := s.SetRelevanceScore(ctx, "r-1", 0.7)
		require.NoError(t, err)
		assert.True(t, updated)

		// Second write is refused: the first score sticks.
		updated, err = s.SetRelevanceScore(ctx, "r-1", 0.1)
		require.NoError(t, err)
		assert.False(t, updated)

		unscored, err := s.ListUnscoredResults(ctx, run.ID)
		require.NoError(t, err)
		assert.Empty(t, unscored)
	})

	t.Run("ListUnscoredResults", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		b := seedBusiness(t, s, model.Business{})
		run, err := s.CreateRun(ctx, b.ID, model.RunTypeInitial, nil)
		require.NoError(t, err)
		_, err = s.InsertResults(ctx, []model.ResearchResult{
			{ID: "r-a", BusinessID: b.ID, RunID: run.ID, Platform: "reddit", ExternalID: "t3_a", RevealAt: time.Now().UTC()},
			{ID: "r-b", BusinessID: b.ID, RunID: run.ID, Platform: "reddit", ExternalID: "t3_b", RevealAt: time.Now().UTC()},
		})
		require.NoError(t, err)

		_, err = s.SetRelevanceScore(ctx, "r-a", 0.5)
		require.NoError(t, err)

		unscored, err := s.ListUnscoredResults(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, unscored, 1)
		assert.Equal(t, "r-b", unscored[0].ID)
		assert.Nil(t, unscored[0].RelevanceScore)
	})

	t.Run("GetResearchStats", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		b := seedBusiness(t, s, model.Business{})
		run, err := s.CreateRun(ctx, b.ID, model.RunTypeInitial, nil)
		require.NoError(t, err)

		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		_, err = s.InsertResults(ctx, []model.ResearchResult{
			{BusinessID: b.ID, RunID: run.ID, Platform: "reddit", ExternalID: "t3_1", RevealAt: now.Add(-time.Hour)},
			{BusinessID: b.ID, RunID: run.ID, Platform: "reddit", ExternalID: "t3_2", RevealAt: now.Add(time.Hour)},
			{BusinessID: b.ID, RunID: run.ID, Platform: "reddit", ExternalID: "t3_3", RevealAt: now.Add(3 * time.Hour)},
		})
		require.NoError(t, err)

		stats, err := s.GetResearchStats(ctx, b.ID, now)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.TotalResults)
		assert.Equal(t, 1, stats.RevealedCount)
		assert.Equal(t, 2, stats.PendingCount)
		require.NotNil(t, stats.LastRunAt)
		require.NotNil(t, stats.NextRevealAt)
		assert.Equal(t, now.Add(time.Hour).Unix(), stats.NextRevealAt.Unix())
	})

	t.Run("GetResearchStatsEmpty", func(t *testing.T) {
		s := newStore(t)
		b := seedBusiness(t, s, model.Business{})

		stats, err := s.GetResearchStats(context.Background(), b.ID, time.Now().UTC())
		require.NoError(t, err)
		assert.Equal(t, 0, stats.TotalResults)
		assert.Nil(t, stats.NextRevealAt)
		assert.Nil(t, stats.LastRunAt)
	})

	t.Run("LeadCacheRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		miss, err := s.GetLeadCache(ctx, "no-such-key")
		require.NoError(t, err)
		assert.Nil(t, miss)

		entry, err := s.UpsertLeadCache(ctx, model.LeadCache{
			CacheKey:       "abc123",
			Kind:           "listing",
			RawScrapeID:    "rs-1",
			TotalResults:   120,
			VerifiedEmails: 9,
			ScrapedAt:      time.Now().UTC(),
			ExpiresAt:      time.Now().UTC().Add(time.Hour),
		})
		require.NoError(t, err)
		assert.NotEmpty(t, entry.ID)

		got, err := s.GetLeadCache(ctx, "abc123")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, entry.ID, got.ID)
		assert.Equal(t, 9, got.VerifiedEmails)
	})

	t.Run("LeadCacheExpiredIsMiss", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.UpsertLeadCache(ctx, model.LeadCache{
			CacheKey:  "stale",
			Kind:      "listing",
			ScrapedAt: time.Now().UTC().Add(-2 * time.Hour),
			ExpiresAt: time.Now().UTC().Add(-time.Hour),
		})
		require.NoError(t, err)

		got, err := s.GetLeadCache(ctx, "stale")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("LeadCacheUpsertRefreshes", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first, err := s.UpsertLeadCache(ctx, model.LeadCache{
			CacheKey:  "refresh-me",
			Kind:      "listing",
			ScrapedAt: time.Now().UTC(),
			ExpiresAt: time.Now().UTC().Add(time.Hour),
		})
		require.NoError(t, err)

		second, err := s.UpsertLeadCache(ctx, model.LeadCache{
			CacheKey:       "refresh-me",
			Kind:           "listing",
			TotalResults:   10,
			VerifiedEmails: 2,
			ScrapedAt:      time.Now().UTC(),
			ExpiresAt:      time.Now().UTC().Add(2 * time.Hour),
		})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		got, err := s.GetLeadCache(ctx, "refresh-me")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 10, got.TotalResults)
	})

	t.Run("DeleteExpiredLeadCaches", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.UpsertLeadCache(ctx, model.LeadCache{
			CacheKey: "live", Kind: "listing",
			ScrapedAt: time.Now().UTC(), ExpiresAt: time.Now().UTC().Add(time.Hour),
		})
		require.NoError(t, err)
		_, err = s.UpsertLeadCache(ctx, model.LeadCache{
			CacheKey: "dead", Kind: "listing",
			ScrapedAt: time.Now().UTC().Add(-2 * time.Hour), ExpiresAt: time.Now().UTC().Add(-time.Hour),
		})
		require.NoError(t, err)

		deleted, err := s.DeleteExpiredLeadCaches(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, deleted)

		got, err := s.GetLeadCache(ctx, "live")
		require.NoError(t, err)
		assert.NotNil(t, got)
	})

	t.Run("InsertRawScrape", func(t *testing.T) {
		s := newStore(t)
		rs, err := s.InsertRawScrape(context.Background(), model.RawScrape{
			RunID:     "apify-run-1",
			DatasetID: "ds-1",
			Params:    []byte(`{"searchTerm":"plumber austin"}`),
			Items:     []byte(`[{"name":"Joe's Plumbing"}]`),
			ItemCount: 1,
			Status:    "SUCCEEDED",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, rs.ID)
		assert.False(t, rs.CreatedAt.IsZero())
	})

	t.Run("InsertVerifiedLeadsDeduplicates", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		leads := []model.VerifiedLead{
			{Lead: model.Lead{Email: "joe@joesplumbing.com", Domain: "joesplumbing.com", Company: "Joe's Plumbing", Country: "US"},
				State: "Deliverable", IsValid: true, CacheID: "cache-1"},
			{Lead: model.Lead{Email: "sue@suesroofing.com", Domain: "suesroofing.com", Company: "Sue's Roofing", Country: "US"},
				State: "Deliverable", IsValid: true, CacheID: "cache-1"},
		}
		n, err := s.InsertVerifiedLeads(ctx, leads)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		// Same email+country pair does not insert twice.
		n, err = s.InsertVerifiedLeads(ctx, leads[:1])
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		count, err := s.CountLeadsByCache(ctx, "cache-1")
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("InsertVerifiedLeadsEmpty", func(t *testing.T) {
		s := newStore(t)
		n, err := s.InsertVerifiedLeads(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func TestSQLitePing(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ping.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Ping(context.Background()))
}
