package research

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/reachloop/research-core/internal/leads"
	"github.com/reachloop/research-core/internal/model"
	"github.com/reachloop/research-core/internal/resilience"
	"github.com/reachloop/research-core/pkg/apify"
)

// TargetOutcome reports one lead-research target processing pass.
type TargetOutcome struct {
	Success        bool   `json:"success"`
	FromCache      bool   `json:"from_cache"`
	CacheID        string `json:"cache_id,omitempty"`
	TotalResults   int    `json:"total_results"`
	VerifiedEmails int    `json:"verified_emails"`
	Error          string `json:"error,omitempty"`
}

// listingInput is the actor input for one business-listing scrape.
type listingInput struct {
	SearchTerm string `json:"searchTerm"`
	Country    string `json:"countryCode,omitempty"`
	State      string `json:"state,omitempty"`
	City       string `json:"city,omitempty"`
}

// ProcessTarget resolves one research target: from the shared cache when a
// live entry exists, otherwise through a fresh listing scrape and the
// verification gate. The target is marked fulfilled only after every write
// that feeds it has landed.
func (s *Service) ProcessTarget(ctx context.Context, businessID string, index int) (*TargetOutcome, error) {
	fail := func(err error) (*TargetOutcome, error) {
		return &TargetOutcome{Error: err.Error()}, err
	}

	biz, err := s.store.GetBusiness(ctx, businessID)
	if err != nil {
		return fail(eris.Wrap(err, "research: load business"))
	}
	if !biz.Subscription.Entitled() {
		return fail(ErrNoEntitlement)
	}
	if index < 0 || index >= len(biz.Targets) {
		return fail(eris.Errorf("research: target index %d out of range", index))
	}
	target := biz.Targets[index]
	if target.Fulfilled() {
		return fail(eris.Errorf("research: target %d already fulfilled", index))
	}

	topic := target.Keyword
	if topic == "" {
		topic = target.Industry
	}
	key := leads.CacheKey(leads.KindListing, topic, target.Country, target.State, target.City)

	entry, err := s.store.GetLeadCache(ctx, key)
	if err != nil {
		return fail(eris.Wrap(err, "research: cache lookup"))
	}
	if entry != nil {
		if err := s.store.FulfillTarget(ctx, businessID, index, entry.ID, entry.VerifiedEmails); err != nil {
			return fail(eris.Wrap(err, "research: fulfill target from cache"))
		}
		zap.L().Info("target fulfilled from cache",
			zap.String("business_id", businessID),
			zap.Int("target", index),
			zap.String("cache_id", entry.ID))
		return &TargetOutcome{
			Success:        true,
			FromCache:      true,
			CacheID:        entry.ID,
			TotalResults:   entry.TotalResults,
			VerifiedEmails: entry.VerifiedEmails,
		}, nil
	}

	input := listingInput{
		SearchTerm: searchTerm(topic, target),
		Country:    target.Country,
		State:      target.State,
		City:       target.City,
	}
	res, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*apify.RunResult, error) {
		return apify.CollectRun(ctx, s.source, s.cfg.ListingActor, input, s.pollOpts()...)
	})
	if err != nil {
		return fail(eris.Wrap(err, "research: listing scrape"))
	}

	paramsJSON, err := json.Marshal(input)
	if err != nil {
		return fail(eris.Wrap(err, "research: marshal scrape params"))
	}
	itemsJSON, err := json.Marshal(res.Items)
	if err != nil {
		return fail(eris.Wrap(err, "research: marshal scrape items"))
	}
	rawScrape, err := s.store.InsertRawScrape(ctx, model.RawScrape{
		RunID:     res.RunID,
		DatasetID: res.DatasetID,
		Params:    paramsJSON,
		Items:     itemsJSON,
		ItemCount: len(res.Items),
		Status:    apify.RunStatusSucceeded,
	})
	if err != nil {
		return fail(eris.Wrap(err, "research: save raw scrape"))
	}

	ext := leads.Extract(res.Items, s.cfg.DefaultLeadIndustry)
	candidates := fillTargetLocation(ext.Leads, target)

	verified, err := s.gate.Run(ctx, candidates)
	if err != nil {
		// Fail closed: no verdict from the oracle means no leads persist
		// and the target stays open for a retry.
		return fail(err)
	}

	cacheID := uuid.New().String()
	for i := range verified {
		verified[i].RawScrapeID = rawScrape.ID
		verified[i].CacheID = cacheID
	}
	if _, err := s.store.InsertVerifiedLeads(ctx, verified); err != nil {
		return fail(eris.Wrap(err, "research: persist verified leads"))
	}

	now := s.now()
	entry, err = s.store.UpsertLeadCache(ctx, model.LeadCache{
		ID:             cacheID,
		CacheKey:       key,
		Kind:           leads.KindListing,
		RawScrapeID:    rawScrape.ID,
		TotalResults:   len(res.Items),
		VerifiedEmails: len(verified),
		ScrapedAt:      now,
		ExpiresAt:      now.Add(s.cfg.CacheTTL),
	})
	if err != nil {
		// Cache write is load-bearing: without the entry the target cannot
		// point at its results, so it stays unfulfilled.
		return fail(eris.Wrap(err, "research: write cache entry"))
	}

	if err := s.store.FulfillTarget(ctx, businessID, index, entry.ID, entry.VerifiedEmails); err != nil {
		return fail(eris.Wrap(err, "research: fulfill target"))
	}

	zap.L().Info("target fulfilled from scrape",
		zap.String("business_id", businessID),
		zap.Int("target", index),
		zap.String("cache_id", entry.ID),
		zap.Int("listings", len(res.Items)),
		zap.Int("emails_found", ext.TotalEmailsFound),
		zap.Int("verified", len(verified)))

	return &TargetOutcome{
		Success:        true,
		CacheID:        entry.ID,
		TotalResults:   entry.TotalResults,
		VerifiedEmails: entry.VerifiedEmails,
	}, nil
}

func searchTerm(topic string, target model.ResearchTarget) string {
	parts := []string{topic, target.City, target.State, target.Country}
	kept := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

// fillTargetLocation backfills location fields the listing itself did not
// carry, so every persisted lead is at least locatable to its target.
func fillTargetLocation(in []model.Lead, target model.ResearchTarget) []model.Lead {
	out := make([]model.Lead, len(in))
	for i, l := range in {
		if l.Country == "" {
			l.Country = target.Country
		}
		if l.State == "" {
			l.State = target.State
		}
		if l.City == "" {
			l.City = target.City
		}
		out[i] = l
	}
	return out
}
