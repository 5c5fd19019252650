// Package leads turns raw business-listing scrape items into verified
// contacts: candidate email extraction, per-domain dedup, and the
// deliverability gate.
package leads

import (
	"regexp"
	"strings"

	"github.com/reachloop/research-core/internal/model"
	"github.com/reachloop/research-core/pkg/apify"
)

// emailPattern is a deliberately loose local@domain.tld check; the verifier
// oracle is the real arbiter of deliverability.
var emailPattern = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)

// placeholderDomains are site-builder and template platforms whose addresses
// are scaffolding, not real business contacts.
var placeholderDomains = map[string]bool{
	"example.com":        true,
	"domain.com":         true,
	"yourdomain.com":     true,
	"email.com":          true,
	"sentry.io":          true,
	"wixpress.com":       true,
	"wix.com":            true,
	"squarespace.com":    true,
	"wordpress.com":      true,
	"godaddysites.com":   true,
	"mysite.com":         true,
	"business.site":      true,
}

// ExtractResult summarizes one extraction pass.
type ExtractResult struct {
	Leads []model.Lead

	// TotalEmailsFound counts every candidate occurrence, including
	// duplicates within one item. It is an observability counter, not a
	// lead count.
	TotalEmailsFound int
	UniqueDomains    int
	SkippedInvalid   int
}

// Extract collects candidate emails from each listing item and keeps the
// first valid email per domain. One lead per company is policy: a second
// address at the same domain is the same business.
func Extract(items []apify.Item, defaultIndustry string) ExtractResult {
	var res ExtractResult
	byDomain := make(map[string]model.Lead)
	var order []string

	for _, item := range items {
		candidates := make([]string, 0, 1+len(item.Emails))
		if item.Email != "" {
			candidates = append(candidates, item.Email)
		}
		for _, e := range item.Emails {
			if e != "" {
				candidates = append(candidates, e)
			}
		}

		industry := item.Category
		if industry == "" {
			industry = defaultIndustry
		}

		for _, candidate := range candidates {
			res.TotalEmailsFound++

			email, ok := normalizeEmail(candidate)
			if !ok {
				res.SkippedInvalid++
				continue
			}

			domain := email[strings.LastIndex(email, "@")+1:]
			if _, seen := byDomain[domain]; seen {
				continue
			}

			byDomain[domain] = model.Lead{
				Email:    email,
				Domain:   domain,
				Company:  item.Name,
				Phone:    item.Phone,
				Website:  item.Website,
				Address:  item.Address,
				City:     item.City,
				State:    item.State,
				Country:  item.Country,
				Industry: industry,
			}
			order = append(order, domain)
		}
	}

	res.UniqueDomains = len(byDomain)
	res.Leads = make([]model.Lead, 0, len(order))
	for _, domain := range order {
		res.Leads = append(res.Leads, byDomain[domain])
	}
	return res
}

// normalizeEmail trims and lowercases the candidate, then rejects anything
// that fails the basic pattern, sits on a placeholder domain, or looks like
// a mis-parsed URL fragment.
func normalizeEmail(raw string) (string, bool) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", false
	}

	if strings.Contains(email, "http") ||
		strings.Contains(email, "www.") ||
		strings.Contains(email, "//") {
		return "", false
	}

	if !emailPattern.MatchString(email) {
		return "", false
	}

	domain := email[strings.LastIndex(email, "@")+1:]
	if placeholderDomains[domain] {
		return "", false
	}

	return email, true
}
