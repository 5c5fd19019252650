package model

import "time"

// RunType distinguishes the first full-history scrape from the recurring
// weekly incremental scrape.
type RunType string

const (
	RunTypeInitial     RunType = "initial"
	RunTypeIncremental RunType = "incremental"
)

// RunStatus represents the current state of a research run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ResearchRun is one execution of the orchestrator for a business.
type ResearchRun struct {
	ID          string     `json:"id"`
	BusinessID  string     `json:"business_id"`
	Type        RunType    `json:"type"`
	Status      RunStatus  `json:"status"`
	Keywords    []string   `json:"keywords"`
	ItemCount   int        `json:"item_count"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ResearchResult is one scraped content item tied to a business and a run.
// RelevanceScore is nil until the scorer processes it, and is written at
// most once.
type ResearchResult struct {
	ID             string    `json:"id"`
	BusinessID     string    `json:"business_id"`
	RunID          string    `json:"run_id"`
	Platform       string    `json:"platform"`
	ExternalID     string    `json:"external_id"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	URL            string    `json:"url"`
	Score          float64   `json:"score"`
	Raw            []byte    `json:"raw,omitempty"`
	RevealAt       time.Time `json:"reveal_at"`
	RelevanceScore *float64  `json:"relevance_score,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// RawScrape is an immutable record of one externally executed scrape run.
type RawScrape struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	DatasetID string    `json:"dataset_id"`
	Params    []byte    `json:"params"`
	Items     []byte    `json:"items"`
	ItemCount int       `json:"item_count"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// ResearchStats summarizes research state for a business dashboard.
type ResearchStats struct {
	TotalResults  int        `json:"total_results"`
	RevealedCount int        `json:"revealed_count"`
	PendingCount  int        `json:"pending_count"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	NextRevealAt  *time.Time `json:"next_reveal_at,omitempty"`
}
