package research

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachloop/research-core/internal/leads"
	"github.com/reachloop/research-core/internal/model"
	"github.com/reachloop/research-core/pkg/apify"
)

func listingItems() []apify.Item {
	return []apify.Item{
		{Name: "Joe's Plumbing", Email: "joe@joesplumbing.com", Phone: "+1 512 555 0101", City: "Austin", State: "TX", Country: "US", Category: "Plumber"},
		{Name: "Sue's Rooter", Email: "sue@suesrooter.com", City: "Austin", State: "TX", Country: "US", Category: "Plumber"},
		{Name: "No Email LLC", Website: "https://noemail.example"},
	}
}

func plumbingTarget() model.ResearchTarget {
	return model.ResearchTarget{Industry: "plumbing", Country: "US", State: "TX", City: "Austin"}
}

func TestProcessTarget_ScrapeThenPersist(t *testing.T) {
	st := newTestStore(t)
	biz := seedResearchBusiness(t, st, model.Business{
		SourceEnabled: true,
		Targets:       []model.ResearchTarget{plumbingTarget()},
	})
	source := newFakeSource(func(any) ([]apify.Item, error) {
		return listingItems(), nil
	})
	mv := &fakeVerifier{}
	svc := newTestService(t, st, source, mv, nil, fixedNow)
	ctx := context.Background()

	out, err := svc.ProcessTarget(ctx, biz.ID, 0)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.False(t, out.FromCache)
	assert.NotEmpty(t, out.CacheID)
	assert.Equal(t, 3, out.TotalResults)
	assert.Equal(t, 2, out.VerifiedEmails)
	assert.Equal(t, 1, mv.calls)

	got, err := st.GetBusiness(ctx, biz.ID)
	require.NoError(t, err)
	require.True(t, got.Targets[0].Fulfilled())
	assert.Equal(t, out.CacheID, got.Targets[0].CacheID)
	assert.Equal(t, 2, got.Targets[0].ResultCount)

	count, err := st.CountLeadsByCache(ctx, out.CacheID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestProcessTarget_SecondBusinessHitsCache(t *testing.T) {
	st := newTestStore(t)
	first := seedResearchBusiness(t, st, model.Business{
		Name:          "First Co",
		SourceEnabled: true,
		Targets:       []model.ResearchTarget{plumbingTarget()},
	})
	second := seedResearchBusiness(t, st, model.Business{
		Name:          "Second Co",
		SourceEnabled: true,
		Targets:       []model.ResearchTarget{plumbingTarget()},
	})
	source := newFakeSource(func(any) ([]apify.Item, error) {
		return listingItems(), nil
	})
	svc := newTestService(t, st, source, &fakeVerifier{}, nil, fixedNow)
	ctx := context.Background()

	firstOut, err := svc.ProcessTarget(ctx, first.ID, 0)
	require.NoError(t, err)
	assert.False(t, firstOut.FromCache)

	secondOut, err := svc.ProcessTarget(ctx, second.ID, 0)
	require.NoError(t, err)
	assert.True(t, secondOut.Success)
	assert.True(t, secondOut.FromCache)
	assert.Equal(t, firstOut.CacheID, secondOut.CacheID)
	assert.Equal(t, firstOut.VerifiedEmails, secondOut.VerifiedEmails)

	// The scrape ran exactly once across both tenants.
	assert.Equal(t, 1, source.startCount())
}

func TestProcessTarget_VerifierFailureLeavesTargetOpen(t *testing.T) {
	st := newTestStore(t)
	biz := seedResearchBusiness(t, st, model.Business{
		SourceEnabled: true,
		Targets:       []model.ResearchTarget{plumbingTarget()},
	})
	source := newFakeSource(func(any) ([]apify.Item, error) {
		return listingItems(), nil
	})
	svc := newTestService(t, st, source, &fakeVerifier{err: assert.AnError}, nil, fixedNow)
	ctx := context.Background()

	out, err := svc.ProcessTarget(ctx, biz.ID, 0)
	require.Error(t, err)
	assert.False(t, out.Success)

	got, err := st.GetBusiness(ctx, biz.ID)
	require.NoError(t, err)
	assert.False(t, got.Targets[0].Fulfilled())

	// Nothing was cached, so a retry scrapes again.
	retrySvc := newTestService(t, st, source, &fakeVerifier{}, nil, fixedNow)
	retryOut, err := retrySvc.ProcessTarget(ctx, biz.ID, 0)
	require.NoError(t, err)
	assert.True(t, retryOut.Success)
	assert.False(t, retryOut.FromCache)
	assert.Equal(t, 2, source.startCount())
}

func TestProcessTarget_AlreadyFulfilled(t *testing.T) {
	st := newTestStore(t)
	biz := seedResearchBusiness(t, st, model.Business{
		SourceEnabled: true,
		Targets:       []model.ResearchTarget{plumbingTarget()},
	})
	source := newFakeSource(func(any) ([]apify.Item, error) {
		return listingItems(), nil
	})
	svc := newTestService(t, st, source, &fakeVerifier{}, nil, fixedNow)
	ctx := context.Background()

	_, err := svc.ProcessTarget(ctx, biz.ID, 0)
	require.NoError(t, err)

	out, err := svc.ProcessTarget(ctx, biz.ID, 0)
	require.Error(t, err)
	assert.Contains(t, out.Error, "already fulfilled")
	assert.Equal(t, 1, source.startCount())
}

func TestProcessTarget_NotEntitled(t *testing.T) {
	st := newTestStore(t)
	biz := seedResearchBusiness(t, st, model.Business{
		Subscription:  model.SubscriptionPastDue,
		SourceEnabled: true,
		Targets:       []model.ResearchTarget{plumbingTarget()},
	})
	source := newFakeSource(func(any) ([]apify.Item, error) {
		return listingItems(), nil
	})
	svc := newTestService(t, st, source, &fakeVerifier{}, nil, fixedNow)

	_, err := svc.ProcessTarget(context.Background(), biz.ID, 0)
	require.ErrorIs(t, err, ErrNoEntitlement)
	assert.Equal(t, 0, source.startCount())
}

func TestProcessTarget_IndexOutOfRange(t *testing.T) {
	st := newTestStore(t)
	biz := seedResearchBusiness(t, st, model.Business{SourceEnabled: true})
	source := newFakeSource(func(any) ([]apify.Item, error) { return nil, nil })
	svc := newTestService(t, st, source, &fakeVerifier{}, nil, fixedNow)

	_, err := svc.ProcessTarget(context.Background(), biz.ID, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestProcessTarget_KeywordOverridesIndustryInKey(t *testing.T) {
	st := newTestStore(t)
	target := plumbingTarget()
	target.Keyword = "emergency plumber"
	biz := seedResearchBusiness(t, st, model.Business{
		SourceEnabled: true,
		Targets:       []model.ResearchTarget{target},
	})
	source := newFakeSource(func(input any) ([]apify.Item, error) {
		assert.Contains(t, input.(listingInput).SearchTerm, "emergency plumber")
		return listingItems(), nil
	})
	svc := newTestService(t, st, source, &fakeVerifier{}, nil, fixedNow)

	out, err := svc.ProcessTarget(context.Background(), biz.ID, 0)
	require.NoError(t, err)
	assert.True(t, out.Success)
}

func TestProcessTarget_CacheExpiryForcesRescrape(t *testing.T) {
	st := newTestStore(t)
	first := seedResearchBusiness(t, st, model.Business{
		Name:          "First Co",
		SourceEnabled: true,
		Targets:       []model.ResearchTarget{plumbingTarget()},
	})
	second := seedResearchBusiness(t, st, model.Business{
		Name:          "Second Co",
		SourceEnabled: true,
		Targets:       []model.ResearchTarget{plumbingTarget()},
	})
	source := newFakeSource(func(any) ([]apify.Item, error) {
		return listingItems(), nil
	})

	// A TTL shorter than a clock tick: the entry is born expired.
	shortTTL := NewService(st, source, leads.NewGate(&fakeVerifier{}), nil, Config{
		ContentActor: "content-actor",
		ListingActor: "listing-actor",
		CacheTTL:     time.Nanosecond,
	}, WithNow(func() time.Time { return fixedNow.Add(-time.Minute) }))

	_, err := shortTTL.ProcessTarget(context.Background(), first.ID, 0)
	require.NoError(t, err)

	svc := newTestService(t, st, source, &fakeVerifier{}, nil, fixedNow)
	out, err := svc.ProcessTarget(context.Background(), second.ID, 0)
	require.NoError(t, err)
	assert.False(t, out.FromCache)
	assert.Equal(t, 2, source.startCount())
}
