package research

import (
	"context"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachloop/research-core/internal/leads"
	"github.com/reachloop/research-core/internal/model"
	"github.com/reachloop/research-core/internal/scorer"
	"github.com/reachloop/research-core/internal/store"
	"github.com/reachloop/research-core/pkg/apify"
	"github.com/reachloop/research-core/pkg/verifier"
)

// fixedNow pins the pipeline clock for a test run. It is derived from the
// wall clock because the lead cache judges expiry against real time.
var fixedNow = time.Now().UTC().Truncate(time.Hour)

// fakeSource simulates the actor API: StartRun captures inputs and answers
// are served from a per-run dataset map.
type fakeSource struct {
	mu      sync.Mutex
	inputs  []any
	runs    map[string]*apify.Run
	data    map[string][]apify.Item
	seq     int
	respond func(input any) ([]apify.Item, error)
}

func newFakeSource(respond func(input any) ([]apify.Item, error)) *fakeSource {
	return &fakeSource{
		runs:    map[string]*apify.Run{},
		data:    map[string][]apify.Item{},
		respond: respond,
	}
}

func (f *fakeSource) StartRun(_ context.Context, actorID string, input any) (*apify.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
	items, err := f.respond(input)
	if err != nil {
		return nil, err
	}
	f.seq++
	run := &apify.Run{
		ID:        fmt.Sprintf("run-%d", f.seq),
		ActorID:   actorID,
		Status:    apify.RunStatusSucceeded,
		DatasetID: fmt.Sprintf("ds-%d", f.seq),
	}
	f.runs[run.ID] = run
	f.data[run.DatasetID] = items
	return run, nil
}

func (f *fakeSource) GetRun(_ context.Context, runID string) (*apify.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return nil, fmt.Errorf("unknown run %s", runID)
	}
	return run, nil
}

func (f *fakeSource) DatasetItems(_ context.Context, datasetID string) ([]apify.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[datasetID], nil
}

func (f *fakeSource) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

// fakeVerifier marks every submitted email deliverable unless failing.
type fakeVerifier struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeVerifier) Verify(_ context.Context, emails []string) ([]verifier.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]verifier.Result, len(emails))
	for i, e := range emails {
		out[i] = verifier.Result{Email: e, State: verifier.StateDeliverable, IsValid: true}
	}
	return out, nil
}

type fakeScorer struct {
	mu     sync.Mutex
	runIDs []string
}

func (f *fakeScorer) ScoreRun(_ context.Context, _ model.Business, runID string) (*scorer.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runIDs = append(f.runIDs, runID)
	return &scorer.Result{}, nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "research.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func contentItems(posts, comments int) []apify.Item {
	items := make([]apify.Item, 0, posts+comments)
	for i := 0; i < posts; i++ {
		items = append(items, apify.Item{
			ID:    fmt.Sprintf("t3_post%d", i),
			Type:  "post",
			Title: fmt.Sprintf("post %d", i),
			Body:  "looking for a tool",
			URL:   "https://reddit.com/r/x",
			Score: float64(i),
		})
	}
	for i := 0; i < comments; i++ {
		items = append(items, apify.Item{
			ID:   fmt.Sprintf("t1_comment%d", i),
			Type: "comment",
			Body: "me too",
		})
	}
	return items
}

func newTestService(t *testing.T, st store.Store, source apify.Client, mv verifier.Client, sc Scorer, at time.Time) *Service {
	t.Helper()
	return NewService(st, source, leads.NewGate(mv), sc, Config{
		ContentActor: "content-actor",
		ListingActor: "listing-actor",
	},
		WithNow(func() time.Time { return at }),
		WithRand(rand.New(rand.NewPCG(7, 7))),
	)
}

func seedResearchBusiness(t *testing.T, st store.Store, b model.Business) *model.Business {
	t.Helper()
	if b.Name == "" {
		b.Name = "Acme Outreach"
	}
	if b.Subscription == "" {
		b.Subscription = model.SubscriptionActive
	}
	created, err := st.CreateBusiness(context.Background(), b)
	require.NoError(t, err)
	return created
}

func TestRunInitial_EndToEnd(t *testing.T) {
	st := newTestStore(t)
	biz := seedResearchBusiness(t, st, model.Business{
		Keywords:      []string{"crm"},
		SourceEnabled: true,
	})
	source := newFakeSource(func(any) ([]apify.Item, error) {
		return contentItems(50, 10), nil
	})
	svc := newTestService(t, st, source, &fakeVerifier{}, nil, fixedNow)

	out, err := svc.RunInitial(context.Background(), biz.ID)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 60, out.Scraped)
	assert.Equal(t, 10, out.Filtered)
	assert.Equal(t, 50, out.Inserted)

	run, err := st.GetRun(context.Background(), out.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Equal(t, 50, run.ItemCount)

	// At scrape time only the first reveal slot is visible.
	page, err := svc.GetRevealedResults(context.Background(), biz.ID, "", 100, 0)
	require.NoError(t, err)
	assert.True(t, page.Success)
	assert.Less(t, page.Total, 50)
	require.NotNil(t, page.NextRevealAt)

	// A week plus change later every reveal time has passed.
	later := newTestService(t, st, source, &fakeVerifier{}, nil, fixedNow.Add(8*24*time.Hour))
	page, err = later.GetRevealedResults(context.Background(), biz.ID, "", 100, 0)
	require.NoError(t, err)
	assert.Equal(t, 50, page.Total)
	assert.Len(t, page.Results, 50)
	assert.Nil(t, page.NextRevealAt)
	for _, r := range page.Results {
		assert.False(t, r.RevealAt.Before(fixedNow))
		assert.False(t, r.RevealAt.After(fixedNow.Add(7*24*time.Hour)))
		assert.NotEqual(t, "comment", r.Title)
	}
}

func TestRunInitial_FailsClosedBeforeAnyWork(t *testing.T) {
	tests := []struct {
		name    string
		biz     model.Business
		wantErr error
	}{
		{
			name:    "canceled subscription",
			biz:     model.Business{Subscription: model.SubscriptionCanceled, SourceEnabled: true, Keywords: []string{"crm"}},
			wantErr: ErrNoEntitlement,
		},
		{
			name:    "source disabled",
			biz:     model.Business{Subscription: model.SubscriptionActive, SourceEnabled: false, Keywords: []string{"crm"}},
			wantErr: ErrSourceDisabled,
		},
		{
			name:    "no keywords",
			biz:     model.Business{Subscription: model.SubscriptionActive, SourceEnabled: true},
			wantErr: ErrNoKeywords,
		},
		{
			name:    "blank keywords",
			biz:     model.Business{Subscription: model.SubscriptionActive, SourceEnabled: true, Keywords: []string{"", "  "}},
			wantErr: ErrNoKeywords,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newTestStore(t)
			biz := seedResearchBusiness(t, st, tt.biz)
			source := newFakeSource(func(any) ([]apify.Item, error) {
				return contentItems(1, 0), nil
			})
			svc := newTestService(t, st, source, &fakeVerifier{}, nil, fixedNow)

			out, err := svc.RunInitial(context.Background(), biz.ID)
			require.ErrorIs(t, err, tt.wantErr)
			assert.False(t, out.Success)
			assert.NotEmpty(t, out.Error)
			// Failing closed means no scrape was even attempted.
			assert.Equal(t, 0, source.startCount())
		})
	}
}

func TestRunInitial_CapsKeywords(t *testing.T) {
	st := newTestStore(t)
	biz := seedResearchBusiness(t, st, model.Business{
		Keywords:      []string{"a", "b", "c", "d", "e", "f", "g"},
		SourceEnabled: true,
	})
	source := newFakeSource(func(any) ([]apify.Item, error) {
		return nil, nil
	})
	svc := newTestService(t, st, source, &fakeVerifier{}, nil, fixedNow)

	out, err := svc.RunInitial(context.Background(), biz.ID)
	require.NoError(t, err)
	assert.Len(t, out.Keywords, 5)
	assert.Equal(t, 5, source.startCount())
}

func TestRunInitial_PartialKeywordFailureTolerated(t *testing.T) {
	st := newTestStore(t)
	biz := seedResearchBusiness(t, st, model.Business{
		Keywords:      []string{"good", "bad"},
		SourceEnabled: true,
	})
	source := newFakeSource(func(input any) ([]apify.Item, error) {
		if input.(contentInput).SearchTerm == "bad" {
			return nil, assert.AnError
		}
		return contentItems(3, 0), nil
	})
	svc := newTestService(t, st, source, &fakeVerifier{}, nil, fixedNow)

	out, err := svc.RunInitial(context.Background(), biz.ID)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 3, out.Inserted)
}

func TestRunInitial_AllKeywordsFailedFailsRun(t *testing.T) {
	st := newTestStore(t)
	biz := seedResearchBusiness(t, st, model.Business{
		Keywords:      []string{"one", "two"},
		SourceEnabled: true,
	})
	source := newFakeSource(func(any) ([]apify.Item, error) {
		return nil, assert.AnError
	})
	svc := newTestService(t, st, source, &fakeVerifier{}, nil, fixedNow)

	out, err := svc.RunInitial(context.Background(), biz.ID)
	require.Error(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "every keyword scrape failed")
}

func TestRunIncremental_UsesWeekFilter(t *testing.T) {
	st := newTestStore(t)
	biz := seedResearchBusiness(t, st, model.Business{
		Keywords:      []string{"crm"},
		SourceEnabled: true,
	})
	source := newFakeSource(func(any) ([]apify.Item, error) {
		return contentItems(4, 0), nil
	})
	svc := newTestService(t, st, source, &fakeVerifier{}, nil, fixedNow)

	out, err := svc.RunIncremental(context.Background(), biz.ID)
	require.NoError(t, err)
	assert.True(t, out.Success)

	require.Len(t, source.inputs, 1)
	assert.Equal(t, "week", source.inputs[0].(contentInput).Time)

	// Weekly results reveal inside the 24h window.
	later := newTestService(t, st, source, &fakeVerifier{}, nil, fixedNow.Add(25*time.Hour))
	page, err := later.GetRevealedResults(context.Background(), biz.ID, "", 100, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
}

func TestRunInitial_RerunInsertsNoDuplicates(t *testing.T) {
	st := newTestStore(t)
	biz := seedResearchBusiness(t, st, model.Business{
		Keywords:      []string{"crm"},
		SourceEnabled: true,
	})
	source := newFakeSource(func(any) ([]apify.Item, error) {
		return contentItems(5, 0), nil
	})
	svc := newTestService(t, st, source, &fakeVerifier{}, nil, fixedNow)
	ctx := context.Background()

	first, err := svc.RunInitial(ctx, biz.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, first.Inserted)

	second, err := svc.RunInitial(ctx, biz.ID)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Equal(t, 0, second.Inserted)
}

func TestRunInitial_TriggersDetachedScoring(t *testing.T) {
	st := newTestStore(t)
	biz := seedResearchBusiness(t, st, model.Business{
		Keywords:      []string{"crm"},
		SourceEnabled: true,
	})
	source := newFakeSource(func(any) ([]apify.Item, error) {
		return contentItems(2, 0), nil
	})
	sc := &fakeScorer{}
	svc := newTestService(t, st, source, &fakeVerifier{}, sc, fixedNow)

	out, err := svc.RunInitial(context.Background(), biz.ID)
	require.NoError(t, err)
	svc.Wait()

	assert.Equal(t, []string{out.RunID}, sc.runIDs)
}

func TestGetResearchStats(t *testing.T) {
	st := newTestStore(t)
	biz := seedResearchBusiness(t, st, model.Business{
		Keywords:      []string{"crm"},
		SourceEnabled: true,
	})
	source := newFakeSource(func(any) ([]apify.Item, error) {
		return contentItems(6, 0), nil
	})
	svc := newTestService(t, st, source, &fakeVerifier{}, nil, fixedNow)

	_, err := svc.RunInitial(context.Background(), biz.ID)
	require.NoError(t, err)

	out, err := svc.GetResearchStats(context.Background(), biz.ID)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 6, out.Stats.TotalResults)
	assert.Equal(t, out.Stats.TotalResults, out.Stats.RevealedCount+out.Stats.PendingCount)
	require.NotNil(t, out.Stats.LastRunAt)
}
