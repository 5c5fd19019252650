package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/reachloop/research-core/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	sqlGetBusiness = `SELECT id, name, description, target_audience, industry, keywords, subscription, source_enabled, targets, created_at, updated_at FROM businesses WHERE id = $1`

	sqlInsertResult = `INSERT INTO research_results (id, business_id, run_id, platform, external_id, title, body, url, score, raw, reveal_at, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) ON CONFLICT (business_id, platform, external_id) DO NOTHING`

	sqlSetRelevanceScore = `UPDATE research_results SET relevance_score = $1 WHERE id = $2 AND relevance_score IS NULL`

	sqlGetLeadCache = `SELECT id, cache_key, kind, raw_scrape_id, total_results, verified_emails, scraped_at, expires_at FROM lead_cache WHERE cache_key = $1 AND expires_at > now() LIMIT 1`
)

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"get_business":        sqlGetBusiness,
	"insert_result":       sqlInsertResult,
	"set_relevance_score": sqlSetRelevanceScore,
	"get_lead_cache":      sqlGetLeadCache,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS businesses (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name            TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	target_audience TEXT NOT NULL DEFAULT '',
	industry        TEXT NOT NULL DEFAULT '',
	keywords        JSONB NOT NULL DEFAULT '[]',
	subscription    TEXT NOT NULL DEFAULT 'active',
	source_enabled  BOOLEAN NOT NULL DEFAULT true,
	targets         JSONB NOT NULL DEFAULT '[]',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS research_runs (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	business_id  TEXT NOT NULL REFERENCES businesses(id),
	run_type     TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	keywords     JSONB NOT NULL DEFAULT '[]',
	item_count   INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT '',
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS research_results (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	business_id     TEXT NOT NULL REFERENCES businesses(id),
	run_id          TEXT NOT NULL REFERENCES research_runs(id),
	platform        TEXT NOT NULL,
	external_id     TEXT NOT NULL,
	title           TEXT NOT NULL DEFAULT '',
	body            TEXT NOT NULL DEFAULT '',
	url             TEXT NOT NULL DEFAULT '',
	score           DOUBLE PRECISION NOT NULL DEFAULT 0,
	raw             JSONB,
	reveal_at       TIMESTAMPTZ NOT NULL,
	relevance_score DOUBLE PRECISION,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (business_id, platform, external_id)
);

CREATE TABLE IF NOT EXISTS lead_cache (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	cache_key       TEXT NOT NULL UNIQUE,
	kind            TEXT NOT NULL,
	raw_scrape_id   TEXT NOT NULL DEFAULT '',
	total_results   INTEGER NOT NULL DEFAULT 0,
	verified_emails INTEGER NOT NULL DEFAULT 0,
	scraped_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS raw_scrapes (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id     TEXT NOT NULL DEFAULT '',
	dataset_id TEXT NOT NULL DEFAULT '',
	params     JSONB,
	items      JSONB,
	item_count INTEGER NOT NULL DEFAULT 0,
	status     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS verified_leads (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
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
	is_valid      BOOLEAN NOT NULL DEFAULT false,
	free          BOOLEAN NOT NULL DEFAULT false,
	role          BOOLEAN NOT NULL DEFAULT false,
	disposable    BOOLEAN NOT NULL DEFAULT false,
	accept_all    BOOLEAN NOT NULL DEFAULT false,
	raw_scrape_id TEXT NOT NULL DEFAULT '',
	cache_id      TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (email, country)
);

CREATE INDEX IF NOT EXISTS idx_research_runs_business ON research_runs(business_id);
CREATE INDEX IF NOT EXISTS idx_research_results_business ON research_results(business_id);
CREATE INDEX IF NOT EXISTS idx_research_results_reveal_at ON research_results(business_id, reveal_at);
CREATE INDEX IF NOT EXISTS idx_research_results_unscored ON research_results(run_id) WHERE relevance_score IS NULL;
CREATE INDEX IF NOT EXISTS idx_lead_cache_expires_at ON lead_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_verified_leads_cache ON verified_leads(cache_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateBusiness(ctx context.Context, b model.Business) (*model.Business, error) {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	keywordsJSON, err := json.Marshal(b.Keywords)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal keywords")
	}
	targetsJSON, err := json.Marshal(b.Targets)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal targets")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO businesses (id, name, description, target_audience, industry, keywords, subscription, source_enabled, targets, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		b.ID, b.Name, b.Description, b.TargetAudience, b.Industry, keywordsJSON,
		string(b.Subscription), b.SourceEnabled, targetsJSON, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert business")
	}
	return &b, nil
}

func (s *PostgresStore) GetBusiness(ctx context.Context, id string) (*model.Business, error) {
	var b model.Business
	var keywordsJSON, targetsJSON []byte

	err := s.pool.QueryRow(ctx, sqlGetBusiness, id).Scan(
		&b.ID, &b.Name, &b.Description, &b.TargetAudience, &b.Industry,
		&keywordsJSON, &b.Subscription, &b.SourceEnabled, &targetsJSON,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get business %s", id)
	}
	if err := json.Unmarshal(keywordsJSON, &b.Keywords); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal keywords")
	}
	if err := json.Unmarshal(targetsJSON, &b.Targets); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal targets")
	}
	return &b, nil
}

func (s *PostgresStore) UpdateBusinessTargets(ctx context.Context, id string, targets []model.ResearchTarget) error {
	targetsJSON, err := json.Marshal(targets)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal targets")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE businesses SET targets = $1, updated_at = $2 WHERE id = $3`,
		targetsJSON, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update targets %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("business not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) FulfillTarget(ctx context.Context, businessID string, index int, cacheID string, resultCount int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin fulfill target")
	}
	defer tx.Rollback(ctx)

	var targetsJSON []byte
	err = tx.QueryRow(ctx,
		`SELECT targets FROM businesses WHERE id = $1 FOR UPDATE`, businessID,
	).Scan(&targetsJSON)
	if err != nil {
		return eris.Wrapf(err, "postgres: lock business %s", businessID)
	}

	var targets []model.ResearchTarget
	if err := json.Unmarshal(targetsJSON, &targets); err != nil {
		return eris.Wrap(err, "postgres: unmarshal targets")
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
		return eris.Wrap(err, "postgres: marshal targets")
	}
	_, err = tx.Exec(ctx,
		`UPDATE businesses SET targets = $1, updated_at = $2 WHERE id = $3`,
		updated, now, businessID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update targets %s", businessID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit fulfill target")
}

func (s *PostgresStore) CreateRun(ctx context.Context, businessID string, runType model.RunType, keywords []string) (*model.ResearchRun, error) {
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
		return nil, eris.Wrap(err, "postgres: marshal keywords")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO research_runs (id, business_id, run_type, status, keywords, started_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.BusinessID, string(run.Type), string(run.Status), keywordsJSON, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &run, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, itemCount int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE research_runs SET status = $1, item_count = $2, completed_at = $3 WHERE id = $4`,
		string(model.RunStatusCompleted), itemCount, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE research_runs SET status = $1, error = $2, completed_at = $3 WHERE id = $4`,
		string(model.RunStatusFailed), reason, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.ResearchRun, error) {
	var r model.ResearchRun
	var keywordsJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, business_id, run_type, status, keywords, item_count, error, started_at, completed_at FROM research_runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.BusinessID, &r.Type, &r.Status, &keywordsJSON, &r.ItemCount, &r.Error, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	if err := json.Unmarshal(keywordsJSON, &r.Keywords); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal keywords")
	}
	return &r, nil
}

// InsertResults bulk-inserts results, silently skipping duplicates of
// (business_id, platform, external_id). If the bulk statement fails it
// retries row by row so one bad row cannot sink the whole batch.
func (s *PostgresStore) InsertResults(ctx context.Context, results []model.ResearchResult) (int, error) {
	if len(results) == 0 {
		return 0, nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO research_results (id, business_id, run_id, platform, external_id, title, body, url, score, raw, reveal_at, created_at) VALUES `)
	args := make([]any, 0, len(results)*12)
	for i, r := range results {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 12
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10, base+11, base+12)
		args = append(args, resultArgs(r)...)
	}
	sb.WriteString(` ON CONFLICT (business_id, platform, external_id) DO NOTHING`)

	tag, err := s.pool.Exec(ctx, sb.String(), args...)
	if err == nil {
		return int(tag.RowsAffected()), nil
	}
	zap.L().Warn("bulk result insert failed, retrying row by row",
		zap.Int("count", len(results)), zap.Error(err))

	inserted := 0
	for _, r := range results {
		tag, err := s.pool.Exec(ctx, sqlInsertResult, resultArgs(r)...)
		if err != nil {
			zap.L().Warn("result insert failed",
				zap.String("external_id", r.ExternalID), zap.Error(err))
			continue
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func resultArgs(r model.ResearchResult) []any {
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
		raw = r.Raw
	}
	return []any{id, r.BusinessID, r.RunID, r.Platform, r.ExternalID,
		r.Title, r.Body, r.URL, r.Score, raw, r.RevealAt, createdAt}
}

func (s *PostgresStore) ListRevealedResults(ctx context.Context, filter ResultFilter) (*ResultPage, error) {
	now := filter.now()
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	where := `WHERE business_id = $1 AND reveal_at <= $2`
	args := []any{filter.BusinessID, now}
	if filter.Platform != "" {
		where += ` AND platform = $3`
		args = append(args, filter.Platform)
	}

	page := &ResultPage{}
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM research_results `+where, args...,
	).Scan(&page.Total)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count revealed results")
	}

	n := len(args)
	query := fmt.Sprintf(
		`SELECT id, business_id, run_id, platform, external_id, title, body, url, score, reveal_at, relevance_score, created_at FROM research_results %s ORDER BY relevance_score DESC NULLS LAST, reveal_at ASC LIMIT $%d OFFSET $%d`,
		where, n+1, n+2,
	)
	rows, err := s.pool.Query(ctx, query, append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list revealed results")
	}
	defer rows.Close()

	for rows.Next() {
		var r model.ResearchResult
		if err := rows.Scan(&r.ID, &r.BusinessID, &r.RunID, &r.Platform, &r.ExternalID,
			&r.Title, &r.Body, &r.URL, &r.Score, &r.RevealAt, &r.RelevanceScore, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan result")
		}
		page.Results = append(page.Results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate results")
	}

	var next *time.Time
	err = s.pool.QueryRow(ctx,
		`SELECT min(reveal_at) FROM research_results WHERE business_id = $1 AND reveal_at > $2`,
		filter.BusinessID, now,
	).Scan(&next)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: next reveal")
	}
	page.NextRevealAt = next
	return page, nil
}

func (s *PostgresStore) ListUnscoredResults(ctx context.Context, runID string) ([]model.ResearchResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, business_id, run_id, platform, external_id, title, body, url, score, reveal_at, relevance_score, created_at FROM research_results WHERE run_id = $1 AND relevance_score IS NULL ORDER BY created_at ASC`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list unscored results %s", runID)
	}
	defer rows.Close()

	var out []model.ResearchResult
	for rows.Next() {
		var r model.ResearchResult
		if err := rows.Scan(&r.ID, &r.BusinessID, &r.RunID, &r.Platform, &r.ExternalID,
			&r.Title, &r.Body, &r.URL, &r.Score, &r.RevealAt, &r.RelevanceScore, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan result")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate unscored results")
}

func (s *PostgresStore) SetRelevanceScore(ctx context.Context, resultID string, score float64) (bool, error) {
	tag, err := s.pool.Exec(ctx, sqlSetRelevanceScore, score, resultID)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: set relevance score %s", resultID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) GetResearchStats(ctx context.Context, businessID string, now time.Time) (*model.ResearchStats, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	stats := &model.ResearchStats{}

	err := s.pool.QueryRow(ctx,
		`SELECT count(*), count(*) FILTER (WHERE reveal_at <= $2), min(reveal_at) FILTER (WHERE reveal_at > $2) FROM research_results WHERE business_id = $1`,
		businessID, now,
	).Scan(&stats.TotalResults, &stats.RevealedCount, &stats.NextRevealAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: research stats %s", businessID)
	}
	stats.PendingCount = stats.TotalResults - stats.RevealedCount

	err = s.pool.QueryRow(ctx,
		`SELECT max(started_at) FROM research_runs WHERE business_id = $1`,
		businessID,
	).Scan(&stats.LastRunAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: last run %s", businessID)
	}
	return stats, nil
}

func (s *PostgresStore) GetLeadCache(ctx context.Context, cacheKey string) (*model.LeadCache, error) {
	var c model.LeadCache
	err := s.pool.QueryRow(ctx, sqlGetLeadCache, cacheKey).Scan(
		&c.ID, &c.CacheKey, &c.Kind, &c.RawScrapeID,
		&c.TotalResults, &c.VerifiedEmails, &c.ScrapedAt, &c.ExpiresAt,
	)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get lead cache")
	}
	return &c, nil
}

func (s *PostgresStore) UpsertLeadCache(ctx context.Context, entry model.LeadCache) (*model.LeadCache, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO lead_cache (id, cache_key, kind, raw_scrape_id, total_results, verified_emails, scraped_at, expires_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (cache_key) DO UPDATE SET kind = EXCLUDED.kind, raw_scrape_id = EXCLUDED.raw_scrape_id, total_results = EXCLUDED.total_results, verified_emails = EXCLUDED.verified_emails, scraped_at = EXCLUDED.scraped_at, expires_at = EXCLUDED.expires_at RETURNING id`,
		entry.ID, entry.CacheKey, entry.Kind, entry.RawScrapeID,
		entry.TotalResults, entry.VerifiedEmails, entry.ScrapedAt, entry.ExpiresAt,
	).Scan(&entry.ID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: upsert lead cache")
	}
	return &entry, nil
}

func (s *PostgresStore) DeleteExpiredLeadCaches(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM lead_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired lead caches")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) InsertRawScrape(ctx context.Context, rs model.RawScrape) (*model.RawScrape, error) {
	if rs.ID == "" {
		rs.ID = uuid.New().String()
	}
	if rs.CreatedAt.IsZero() {
		rs.CreatedAt = time.Now().UTC()
	}
	var params, items any
	if len(rs.Params) > 0 {
		params = rs.Params
	}
	if len(rs.Items) > 0 {
		items = rs.Items
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO raw_scrapes (id, run_id, dataset_id, params, items, item_count, status, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rs.ID, rs.RunID, rs.DatasetID, params, items, rs.ItemCount, rs.Status, rs.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert raw scrape")
	}
	return &rs, nil
}

func (s *PostgresStore) InsertVerifiedLeads(ctx context.Context, leads []model.VerifiedLead) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}
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
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO verified_leads (id, email, domain, company, phone, website, address, city, state, country, industry, verify_state, is_valid, free, role, disposable, accept_all, raw_scrape_id, cache_id, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20) ON CONFLICT (email, country) DO NOTHING`,
			id, l.Lead.Email, l.Lead.Domain, l.Lead.Company, l.Lead.Phone, l.Lead.Website,
			l.Lead.Address, l.Lead.City, l.Lead.State, l.Lead.Country, l.Lead.Industry,
			l.State, l.IsValid, l.Free, l.Role, l.Disposable, l.AcceptAll,
			l.RawScrapeID, l.CacheID, createdAt,
		)
		if err != nil {
			return inserted, eris.Wrapf(err, "postgres: insert verified lead %s", l.Lead.Email)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (s *PostgresStore) CountLeadsByCache(ctx context.Context, cacheID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM verified_leads WHERE cache_id = $1`, cacheID,
	).Scan(&n)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: count leads for cache %s", cacheID)
	}
	return n, nil
}
