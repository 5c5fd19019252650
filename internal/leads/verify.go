package leads

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/reachloop/research-core/internal/model"
	"github.com/reachloop/research-core/internal/resilience"
	"github.com/reachloop/research-core/pkg/verifier"
)

// Gate submits extracted leads to the verification oracle and promotes only
// confirmed-deliverable addresses. The gate fails closed: if the oracle call
// fails, no leads survive the pass.
type Gate struct {
	client verifier.Client
	retry  resilience.Policy
}

// NewGate creates a verification gate.
func NewGate(client verifier.Client) *Gate {
	p := resilience.DefaultPolicy()
	p.OnRetry = resilience.RetryLogger("verifier", "verify")
	p.ShouldRetry = func(err error) bool {
		var apiErr *verifier.APIError
		if eris.As(err, &apiErr) {
			return resilience.IsTransientHTTPStatus(apiErr.StatusCode)
		}
		return resilience.IsTransient(err)
	}
	return &Gate{client: client, retry: p}
}

// Run verifies all leads in a single batched oracle call and returns the
// subset that may be persisted. An oracle failure returns an error and zero
// leads; persisting unverified leads is never acceptable.
func (g *Gate) Run(ctx context.Context, leads []model.Lead) ([]model.VerifiedLead, error) {
	if len(leads) == 0 {
		return nil, nil
	}

	emails := make([]string, len(leads))
	byEmail := make(map[string]model.Lead, len(leads))
	for i, l := range leads {
		emails[i] = l.Email
		byEmail[l.Email] = l
	}

	results, err := resilience.DoVal(ctx, g.retry, func(ctx context.Context) ([]verifier.Result, error) {
		return g.client.Verify(ctx, emails)
	})
	if err != nil {
		return nil, eris.Wrap(err, "leads: verification call failed")
	}

	var verified []model.VerifiedLead
	for _, r := range results {
		lead, ok := byEmail[r.Email]
		if !ok {
			zap.L().Warn("leads: verifier returned unknown email",
				zap.String("email", r.Email),
			)
			continue
		}
		if !r.Deliverable() {
			continue
		}
		verified = append(verified, model.VerifiedLead{
			Lead:       lead,
			State:      r.State,
			IsValid:    r.IsValid,
			Free:       r.Free,
			Role:       r.Role,
			Disposable: r.Disposable,
			AcceptAll:  r.AcceptAll,
		})
	}

	zap.L().Info("leads: verification pass complete",
		zap.Int("submitted", len(emails)),
		zap.Int("deliverable", len(verified)),
	)
	return verified, nil
}
