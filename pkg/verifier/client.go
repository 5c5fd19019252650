// Package verifier provides a client for the bulk email verification API.
// Verification is expensive per call, so all emails from one extraction pass
// are submitted in a single batch.
package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Default base URL for the verification API.
const defaultBaseURL = "https://api.millionverifier.com"

// StateDeliverable is the oracle's classification for an address confirmed
// to accept mail. Promotion to storage additionally requires IsValid.
const StateDeliverable = "Deliverable"

// Client defines the verification operations.
type Client interface {
	// Verify classifies a batch of emails in a single API call.
	Verify(ctx context.Context, emails []string) ([]Result, error)
}

// Result is the oracle's verdict for one email.
type Result struct {
	Email      string `json:"email"`
	Domain     string `json:"domain"`
	State      string `json:"result"`
	IsValid    bool   `json:"is_valid"`
	Free       bool   `json:"free"`
	Role       bool   `json:"role"`
	Disposable bool   `json:"disposable"`
	AcceptAll  bool   `json:"accept_all"`
}

// Deliverable reports whether the result permits persisting the lead. Both
// the state sentinel and the validity flag are required.
func (r Result) Deliverable() bool {
	return r.State == StateDeliverable && r.IsValid
}

type verifyRequest struct {
	Emails []string `json:"emails"`
}

type verifyResponse struct {
	Results []Result `json:"results"`
}

// APIError is returned when the verifier responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("verifier: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a new verification client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Verify(ctx context.Context, emails []string) ([]Result, error) {
	if len(emails) == 0 {
		return nil, nil
	}

	buf, err := json.Marshal(verifyRequest{Emails: emails})
	if err != nil {
		return nil, eris.Wrap(err, "verifier: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v3/bulk", bytes.NewReader(buf))
	if err != nil {
		return nil, eris.Wrap(err, "verifier: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "verifier: execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "verifier: read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	var parsed verifyResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, eris.Wrap(err, "verifier: decode response")
	}

	return parsed.Results, nil
}
