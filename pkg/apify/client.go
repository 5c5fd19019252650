// Package apify provides a client for running Apify actors and fetching
// their dataset items. Actors are the external bulk-scrape oracle: one for
// keyword/topic content scrapes, one for location-scoped business listings.
package apify

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

// Default base URL for the Apify v2 API.
const defaultBaseURL = "https://api.apify.com/v2"

// Run statuses reported by the Apify API.
const (
	RunStatusSucceeded = "SUCCEEDED"
	RunStatusFailed    = "FAILED"
	RunStatusAborted   = "ABORTED"
	RunStatusTimedOut  = "TIMED-OUT"
)

// Client defines the Apify actor operations.
type Client interface {
	StartRun(ctx context.Context, actorID string, input any) (*Run, error)
	GetRun(ctx context.Context, runID string) (*Run, error)
	DatasetItems(ctx context.Context, datasetID string) ([]Item, error)
}

// Run describes one actor run.
type Run struct {
	ID        string `json:"id"`
	ActorID   string `json:"actId"`
	Status    string `json:"status"`
	DatasetID string `json:"defaultDatasetId"`
}

// runEnvelope wraps run responses, which Apify nests under "data".
type runEnvelope struct {
	Data Run `json:"data"`
}

// Item is one normalized dataset item. Content scrapes populate the
// post/comment fields; listing scrapes populate the business fields.
type Item struct {
	ID        string  `json:"id"`
	Type      string  `json:"type,omitempty"` // "post" or "comment"
	Title     string  `json:"title,omitempty"`
	Body      string  `json:"body,omitempty"`
	URL       string  `json:"url,omitempty"`
	Score     float64 `json:"score,omitempty"`
	CreatedAt int64   `json:"createdAt,omitempty"`

	// Business-listing fields.
	Name     string   `json:"name,omitempty"`
	Email    string   `json:"email,omitempty"`
	Emails   []string `json:"emails,omitempty"`
	Phone    string   `json:"phone,omitempty"`
	Website  string   `json:"website,omitempty"`
	Address  string   `json:"address,omitempty"`
	City     string   `json:"city,omitempty"`
	State    string   `json:"state,omitempty"`
	Country  string   `json:"countryCode,omitempty"`
	Category string   `json:"categoryName,omitempty"`
}

// APIError is returned when Apify responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apify: HTTP %d: %s", e.StatusCode, e.Body)
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

// httpClient implements Client using net/http.
type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a new Apify client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
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

func (c *httpClient) StartRun(ctx context.Context, actorID string, input any) (*Run, error) {
	var resp runEnvelope
	if err := c.post(ctx, fmt.Sprintf("/acts/%s/runs", actorID), input, &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("apify: start run for actor %s", actorID))
	}
	return &resp.Data, nil
}

func (c *httpClient) GetRun(ctx context.Context, runID string) (*Run, error) {
	var resp runEnvelope
	if err := c.get(ctx, fmt.Sprintf("/actor-runs/%s", runID), &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("apify: get run %s", runID))
	}
	return &resp.Data, nil
}

func (c *httpClient) DatasetItems(ctx context.Context, datasetID string) ([]Item, error) {
	var items []Item
	if err := c.get(ctx, fmt.Sprintf("/datasets/%s/items", datasetID), &items); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("apify: dataset items %s", datasetID))
	}
	return items, nil
}

func (c *httpClient) post(ctx context.Context, path string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(req, out)
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}

	return nil
}
