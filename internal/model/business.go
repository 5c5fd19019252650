package model

import "time"

// SubscriptionStatus mirrors the billing system's view of a business.
// Billing itself lives outside this service; we only gate on the status.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionCanceled SubscriptionStatus = "canceled"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
)

// Entitled reports whether the business may run research.
func (s SubscriptionStatus) Entitled() bool {
	return s == SubscriptionActive || s == SubscriptionTrialing
}

// Business is the tenant unit. Research targets are stored denormalized as a
// JSON array on the business row and mutated only under a row lock.
type Business struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	Description    string             `json:"description"`
	TargetAudience string             `json:"target_audience"`
	Industry       string             `json:"industry"`
	Keywords       []string           `json:"keywords"`
	Subscription   SubscriptionStatus `json:"subscription"`
	SourceEnabled  bool               `json:"source_enabled"`
	Targets        []ResearchTarget   `json:"targets"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// ProfileText concatenates the business profile fields into the text that is
// embedded once per scoring pass.
func (b Business) ProfileText() string {
	parts := []string{b.Name, b.Description, b.TargetAudience, b.Industry}
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += ". "
		}
		out += p
	}
	for _, kw := range b.Keywords {
		if kw == "" {
			continue
		}
		if out != "" {
			out += ". "
		}
		out += kw
	}
	return out
}

// ResearchTarget is one (industry, location) pair queued for lead research.
// Once FulfilledAt is set the target is immutable; re-scraping happens only
// through cache expiry.
type ResearchTarget struct {
	Industry    string     `json:"industry"`
	Country     string     `json:"country"`
	State       string     `json:"state,omitempty"`
	City        string     `json:"city,omitempty"`
	Keyword     string     `json:"keyword,omitempty"`
	FulfilledAt *time.Time `json:"fulfilled_at,omitempty"`
	CacheID     string     `json:"cache_id,omitempty"`
	ResultCount int        `json:"result_count,omitempty"`
}

// Fulfilled reports whether the target has already been processed.
func (t ResearchTarget) Fulfilled() bool {
	return t.FulfilledAt != nil
}
