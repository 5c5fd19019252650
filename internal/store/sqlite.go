package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/reachloop/research-core/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS businesses (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	target_audience TEXT NOT NULL DEFAULT '',
	industry        TEXT NOT NULL DEFAULT '',
	keywords        TEXT NOT NULL DEFAULT '[]',
	subscription    TEXT NOT NULL DEFAULT 'active',
	source_enabled  INTEGER NOT NULL DEFAULT 1,
	targets         TEXT NOT NULL DEFAULT '[]',
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS research_runs (
	id           TEXT PRIMARY KEY,
	business_id  TEXT NOT NULL REFERENCES businesses(id),
	run_type     TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	keywords     TEXT NOT NULL DEFAULT '[]',
	item_count   INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT '',
	started_at   DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS research_results (
	id              TEXT PRIMARY KEY,
	business_id     TEXT NOT NULL REFERENCES businesses(id),
	run_id          TEXT NOT NULL REFERENCES research_runs(id),
	platform        TEXT NOT NULL,
	external_id     TEXT NOT NULL,
	title           TEXT NOT NULL DEFAULT '',
	body            TEXT NOT NULL DEFAULT '',
	url             TEXT NOT NULL DEFAULT '',
	score           REAL NOT NULL DEFAULT 0,
	raw             TEXT,
	reveal_at       DATETIME NOT NULL,
	relevance_score REAL,
	created_at      DATETIME NOT NULL,
	UNIQUE (business_id, platform, external_id)
);

CREATE TABLE IF NOT EXISTS lead_cache (
	id              TEXT PRIMARY KEY,
	cache_key       TEXT NOT NULL UNIQUE,
	kind            TEXT NOT NULL,
	raw_scrape_id   TEXT NOT NULL DEFAULT '',
	total_results   INTEGER NOT NULL DEFAULT 0,
	verified_emails INTEGER NOT NULL DEFAULT 0,
	scraped_at      DATETIME NOT NULL,
	expires_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS raw_scrapes (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL DEFAULT '',
	dataset_id TEXT NOT NULL DEFAULT '',
	params     TEXT,
	items      TEXT,
	item_count INTEGER NOT NULL DEFAULT 0,
	status     TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS verified_leads (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL,
	domain        TEXT NOT NULL DEFAULT '',
	company       TEXT NOT NULL DEFAULT '',
	phone         TEXT NOT NULL DEFAULT '',
	website       TEXT NOT NULL DEFAULT '',
	address       TEXT NOT NULL DEFAULT '',
	city          TEXT NOT NULL DEFAULT '',
	state         TEXT NOT NULL DEFAULT '',
	country       TEXT NOT NULL DEFAULT '',
	industry      TEXT NOT NULL DEFAULT '',
	verify_state  TEXT NOT NULL,
	is_valid      INTEGER NOT NULL DEFAULT 0,
	free          INTEGER NOT NULL DEFAULT 0,
	role          INTEGER NOT NULL DEFAULT 0,
	disposable    INTEGER NOT NULL DEFAULT 0,
	accept_all    INTEGER NOT NULL DEFAULT 0,
	raw_scrape_id TEXT NOT NULL DEFAULT '',
	cache_id      TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL,
	UNIQUE (email, country)
);

CREATE INDEX IF NOT EXISTS idx_research_runs_business ON research_runs(business_id);
CREATE INDEX IF NOT EXISTS idx_research_results_business ON research_results(business_id);
CREATE INDEX IF NOT EXISTS idx_research_results_reveal_at ON research_results(business_id, reveal_at);
CREATE INDEX IF NOT EXISTS idx_lead_cache_expires_at ON lead_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_verified_leads_cache ON verified_leads(cache_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", kind, id)
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", kind, id)
	}
	return nil
}

func (s *SQLiteStore) CreateBusiness(ctx context.Context, b model.Business) (*model.Business, error) {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	keywordsJSON, err := json.Marshal(b.Keywords)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal keywords")
	}
	targetsJSON, err := json.Marshal(b.Targets)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal targets")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO businesses (id, name, description, target_audience, industry, keywords, subscription, source_enabled, targets, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, b.Description, b.TargetAudience, b.Industry, string(keywordsJSON),
		string(b.Subscription), b.SourceEnabled, string(targetsJSON), b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert business")
	}
	return &b, nil
}

func (s *SQLiteStore) GetBusiness(ctx context.Context, id string) (*model.Business, error) {
	var b model.Business
	var keywordsJSON, targetsJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, target_audience, industry, keywords, subscription, source_enabled, targets, created_at, updated_at FROM businesses WHERE id = ?`,
		id,
	).Scan(&b.ID, &b.Name, &b.Description, &b.TargetAudience, &b.Industry,
		&keywordsJSON, &b.Subscription, &b.SourceEnabled, &targetsJSON,
		&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get business %s", id)
	}
	if err := json.Unmarshal([]byte(keywordsJSON), &b.Keywords); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal keywords")
	}
	if err := json.Unmarshal([]byte(targetsJSON), &b.Targets); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal targets")
	}
	return &b, nil
}

func (s *SQLiteStore) UpdateBusinessTargets(ctx context.Context, id string, targets []model.ResearchTarget) error {
	targetsJSON, err := json.Marshal(targets)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal targets")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE businesses SET targets = ?, updated_at = ? WHERE id = ?`,
		string(targetsJSON), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update targets %s", id)
	}
	return checkRowsAffected(res, "business", id)
}

func (s *SQLiteStore) FulfillTarget(ctx context.Context, businessID string, index int, cacheID string, resultCount int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin fulfill target")
	}
	defer tx.Rollback()

	var targetsJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT targets FROM businesses WHERE id = ?`, businessID,
	).Scan(&targetsJSON)
	if err != nil {
		return eris.Wrapf(err, "sqlite: get business %s", businessID)
	}

	var targets []model.ResearchTarget
	if err := json.Unmarshal([]byte(targetsJSON), &targets); err != nil {
		return eris.Wrap(err, "sqlite: unmarshal targets")
	}
	if index < 0 || index >= len(targets) {
		return eris.Errorf("target index %d out of range for business %s", index, businessID)
	}
	if targets[index].Fulfilled() {
		return eris.Errorf("target %d already fulfilled for business %s", index, businessID)
	}

	now := time.Now().UTC()
	targets[index].FulfilledAt = &now
	targets[index].CacheID = cacheID
	targets[index].ResultCount = resultCount

	updated, err := json.Marshal(targets)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal targets")
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE businesses SET targets = ?, updated_at = ? WHERE id = ?`,
		string(updated), now, businessID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update targets %s", businessID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit fulfill target")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, businessID string, runType model.RunType, keywords []string) (*model.ResearchRun, error) {
	run := model.ResearchRun{
		ID:         uuid.New().String(),
		BusinessID: businessID,
		Type:       runType,
		Status:     model.RunStatusRunning,
		Keywords:   keywords,
		StartedAt:  time.Now().UTC(),
	}
	keywordsJSON, err := json.Marshal(keywords)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal keywords")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO research_runs (id, business_id, run_type, status, keywords, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.BusinessID, string(run.Type), string(run.Status), string(keywordsJSON), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &run, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, itemCount int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE research_runs SET status = ?, item_count = ?, completed_at = ? WHERE id = ?`,
		string(model.RunStatusCompleted), itemCount, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE research_runs SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), reason, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.ResearchRun, error) {
	var r model.ResearchRun
	var keywordsJSON string
	var completedAt sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT id, business_id, run_type, status, keywords, item_count, error, started_at, completed_at FROM research_runs WHERE id = ?`,
		runID,
	).Scan(&r.ID, &r.BusinessID, &r.Type, &r.Status, &keywordsJSON, &r.ItemCount, &r.Error, &r.StartedAt, &completedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(keywordsJSON), &r.Keywords); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal keywords")
	}
	return &r, nil
}

func (s *SQLiteStore) InsertResults(ctx context.Context, results []model.ResearchResult) (int, error) {
	if len(results) == 0 {
		return 0, nil
	}

	const insert = `INSERT INTO research_results (id, business_id, run_id, platform, external_id, title, body, url, score, raw, reveal_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (business_id, platform, external_id) DO NOTHING`

	sqliteArgs := func(r model.ResearchResult) []any {
		id := r.ID
		if id == "" {
			id = uuid.New().String()
		}
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		var raw any
		if len(r.Raw) > 0 {
			raw = string(r.Raw)
		}
		return []any{id, r.BusinessID, r.RunID, r.Platform, r.ExternalID,
			r.Title, r.Body, r.URL, r.Score, raw, r.RevealAt, createdAt}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert results")
	}
	defer tx.Rollback()

	inserted := 0
	for _, r := range results {
		res, err := tx.ExecContext(ctx, insert, sqliteArgs(r)...)
		if err != nil {
			zap.L().Warn("result insert failed",
				zap.String("external_id", r.ExternalID), zap.Error(err))
			continue
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		inserted += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit insert results")
	}
	return inserted, nil
}

func (s *SQLiteStore) ListRevealedResults(ctx context.Context, filter ResultFilter) (*ResultPage, error) {
	now := filter.now()
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	where := `WHERE business_id = ? AND reveal_at <= ?`
	args := []any{filter.BusinessID, now}
	if filter.Platform != "" {
		where += ` AND platform = ?`
		args = append(args, filter.Platform)
	}

	page := &ResultPage{}
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM research_results `+where, args...,
	).Scan(&page.Total)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count revealed results")
	}

	query := fmt.Sprintf(
		`SELECT id, business_id, run_id, platform, external_id, title, body, url, score, reveal_at, relevance_score, created_at FROM research_results %s ORDER BY relevance_score DESC NULLS LAST, reveal_at ASC LIMIT ? OFFSET ?`,
		where,
	)
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list revealed results")
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanSQLiteResult(rows)
		if err != nil {
			return nil, err
		}
		page.Results = append(page.Results, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate results")
	}

	var next sql.NullTime
	err = s.db.QueryRowContext(ctx,
		`SELECT min(reveal_at) FROM research_results WHERE business_id = ? AND reveal_at > ?`,
		filter.BusinessID, now,
	).Scan(&next)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: next reveal")
	}
	if next.Valid {
		t := next.Time
		page.NextRevealAt = &t
	}
	return page, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteResult(row scannable) (*model.ResearchResult, error) {
	var r model.ResearchResult
	var relevance sql.NullFloat64
	err := row.Scan(&r.ID, &r.BusinessID, &r.RunID, &r.Platform, &r.ExternalID,
		&r.Title, &r.Body, &r.URL, &r.Score, &r.RevealAt, &relevance, &r.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan result")
	}
	if relevance.Valid {
		v := relevance.Float64
		r.RelevanceScore = &v
	}
	return &r, nil
}

func (s *SQLiteStore) ListUnscoredResults(ctx context.Context, runID string) ([]model.ResearchResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, business_id, run_id, platform, external_id, title, body, url, score, reveal_at, relevance_score, created_at FROM research_results WHERE run_id = ? AND relevance_score IS NULL ORDER BY created_at ASC`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list unscored results %s", runID)
	}
	defer rows.Close()

	var out []model.ResearchResult
	for rows.Next() {
		r, err := scanSQLiteResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate unscored results")
}

func (s *SQLiteStore) SetRelevanceScore(ctx context.Context, resultID string, score float64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE research_results SET relevance_score = ? WHERE id = ? AND relevance_score IS NULL`,
		score, resultID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: set relevance score %s", resultID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetResearchStats(ctx context.Context, businessID string, now time.Time) (*model.ResearchStats, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	stats := &model.ResearchStats{}

	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM research_results WHERE business_id = ?`, businessID,
	).Scan(&stats.TotalResults)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: count results %s", businessID)
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM research_results WHERE business_id = ? AND reveal_at <= ?`,
		businessID, now,
	).Scan(&stats.RevealedCount)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: count revealed %s", businessID)
	}
	stats.PendingCount = stats.TotalResults - stats.RevealedCount

	var next sql.NullTime
	err = s.db.QueryRowContext(ctx,
		`SELECT min(reveal_at) FROM research_results WHERE business_id = ? AND reveal_at > ?`,
		businessID, now,
	).Scan(&next)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: next reveal %s", businessID)
	}
	if next.Valid {
		t := next.Time
		stats.NextRevealAt = &t
	}

	var lastRun sql.NullTime
	err = s.db.QueryRowContext(ctx,
		`SELECT max(started_at) FROM research_runs WHERE business_id = ?`, businessID,
	).Scan(&lastRun)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: last run %s", businessID)
	}
	if lastRun.Valid {
		t := lastRun.Time
		stats.LastRunAt = &t
	}
	return stats, nil
}

func (s *SQLiteStore) GetLeadCache(ctx context.Context, cacheKey string) (*model.LeadCache, error) {
	var c model.LeadCache
	err := s.db.QueryRowContext(ctx,
		`SELECT id, cache_key, kind, raw_scrape_id, total_results, verified_emails, scraped_at, expires_at FROM lead_cache WHERE cache_key = ? AND expires_at > ? LIMIT 1`,
		cacheKey, time.Now().UTC(),
	).Scan(&c.ID, &c.CacheKey, &c.Kind, &c.RawScrapeID,
		&c.TotalResults, &c.VerifiedEmails, &c.ScrapedAt, &c.ExpiresAt)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get lead cache")
	}
	return &c, nil
}

func (s *SQLiteStore) UpsertLeadCache(ctx context.Context, entry model.LeadCache) (*model.LeadCache, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO lead_cache (id, cache_key, kind, raw_scrape_id, total_results, verified_emails, scraped_at, expires_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (cache_key) DO UPDATE SET kind = excluded.kind, raw_scrape_id = excluded.raw_scrape_id, total_results = excluded.total_results, verified_emails = excluded.verified_emails, scraped_at = excluded.scraped_at, expires_at = excluded.expires_at RETURNING id`,
		entry.ID, entry.CacheKey, entry.Kind, entry.RawScrapeID,
		entry.TotalResults, entry.VerifiedEmails, entry.ScrapedAt, entry.ExpiresAt,
	).Scan(&entry.ID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: upsert lead cache")
	}
	return &entry, nil
}

func (s *SQLiteStore) DeleteExpiredLeadCaches(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM lead_cache WHERE expires_at <= ?`, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired lead caches")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}

func (s *SQLiteStore) InsertRawScrape(ctx context.Context, rs model.RawScrape) (*model.RawScrape, error) {
	if rs.ID == "" {
		rs.ID = uuid.New().String()
	}
	if rs.CreatedAt.IsZero() {
		rs.CreatedAt = time.Now().UTC()
	}
	var params, items any
	if len(rs.Params) > 0 {
		params = string(rs.Params)
	}
	if len(rs.Items) > 0 {
		items = string(rs.Items)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO raw_scrapes (id, run_id, dataset_id, params, items, item_count, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rs.ID, rs.RunID, rs.DatasetID, params, items, rs.ItemCount, rs.Status, rs.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert raw scrape")
	}
	return &rs, nil
}

func (s *SQLiteStore) InsertVerifiedLeads(ctx context.Context, leads []model.VerifiedLead) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert leads")
	}
	defer tx.Rollback()

	inserted := 0
	for _, l := range leads {
		id := l.ID
		if id == "" {
			id = uuid.New().String()
		}
		createdAt := l.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO verified_leads (id, email, domain, company, phone, website, address, city, state, country, industry, verify_state, is_valid, free, role, disposable, accept_all, raw_scrape_id, cache_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (email, country) DO NOTHING`,
			id, l.Lead.Email, l.Lead.Domain, l.Lead.Company, l.Lead.Phone, l.Lead.Website,
			l.Lead.Address, l.Lead.City, l.Lead.State, l.Lead.Country, l.Lead.Industry,
			l.State, l.IsValid, l.Free, l.Role, l.Disposable, l.AcceptAll,
			l.RawScrapeID, l.CacheID, createdAt,
		)
		if err != nil {
			return inserted, eris.Wrapf(err, "sqlite: insert verified lead %s", l.Lead.Email)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, eris.Wrap(err, "sqlite: rows affected")
		}
		inserted += int(n)
	}
	if err := tx.Commit(); err != nil {
		return inserted, eris.Wrap(err, "sqlite: commit insert leads")
	}
	return inserted, nil
}

func (s *SQLiteStore) CountLeadsByCache(ctx context.Context, cacheID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM verified_leads WHERE cache_id = ?`, cacheID,
	).Scan(&n)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: count leads for cache %s", cacheID)
	}
	return n, nil
}
