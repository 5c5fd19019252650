package model

import "time"

// Lead is a candidate contact extracted from one raw listing item. Leads are
// transient: they exist only between extraction and verification.
type Lead struct {
	Email    string `json:"email"`
	Domain   string `json:"domain"`
	Company  string `json:"company"`
	Phone    string `json:"phone,omitempty"`
	Website  string `json:"website,omitempty"`
	Address  string `json:"address,omitempty"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
	Country  string `json:"country,omitempty"`
	Industry string `json:"industry,omitempty"`
}

// VerifiedLead is a lead that passed the verification gate, persisted with
// the oracle's classification and lineage back to its source scrape.
type VerifiedLead struct {
	ID          string    `json:"id"`
	Lead        Lead      `json:"lead"`
	State       string    `json:"state"`
	IsValid     bool      `json:"is_valid"`
	Free        bool      `json:"free"`
	Role        bool      `json:"role"`
	Disposable  bool      `json:"disposable"`
	AcceptAll   bool      `json:"accept_all"`
	RawScrapeID string    `json:"raw_scrape_id,omitempty"`
	CacheID     string    `json:"cache_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// LeadCache is one content-addressed cache entry. Entries are shared across
// all tenants: the key carries no business identity.
type LeadCache struct {
	ID             string    `json:"id"`
	CacheKey       string    `json:"cache_key"`
	Kind           string    `json:"kind"`
	RawScrapeID    string    `json:"raw_scrape_id"`
	TotalResults   int       `json:"total_results"`
	VerifiedEmails int       `json:"verified_emails"`
	ScrapedAt      time.Time `json:"scraped_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}
