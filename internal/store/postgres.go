package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gatekeeper/internal/models"
)

// PostgresStore implements the Store interface on PostgreSQL. Atomic
// increment-with-expiry uses INSERT .. ON CONFLICT with an expires_at column;
// expired rows are treated as absent and reaped opportunistically. Intended
// for deployments that already run Postgres and do not want a Redis
// dependency.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS rl_counters (
	rule_type    TEXT        NOT NULL,
	identifier   TEXT        NOT NULL,
	window_start BIGINT      NOT NULL,
	count        BIGINT      NOT NULL,
	expires_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (rule_type, identifier, window_start)
);
CREATE TABLE IF NOT EXISTS rl_rules (
	rule_type  TEXT  NOT NULL,
	identifier TEXT  NOT NULL,
	rule       JSONB NOT NULL,
	expires_at TIMESTAMPTZ,
	PRIMARY KEY (rule_type, identifier)
);
CREATE TABLE IF NOT EXISTS waf_rules (
	id   TEXT  PRIMARY KEY,
	rule JSONB NOT NULL
);
`

// NewPostgresStore creates a PostgreSQL-backed store, verifying connectivity
// and creating the schema if it does not exist.
func NewPostgresStore(cfg models.PostgresConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := pool.Exec(context.Background(), postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (ps *PostgresStore) IncrementCounter(ctx context.Context, ruleType, identifier string, windowStart int64, expiry time.Duration) (int64, error) {
	// An expired row is restarted at 1 rather than incremented; this keeps
	// the counter correct when a window key is reused before the reaper runs.
	const q = `
INSERT INTO rl_counters (rule_type, identifier, window_start, count, expires_at)
VALUES ($1, $2, $3, 1, now() + $4::interval)
ON CONFLICT (rule_type, identifier, window_start) DO UPDATE SET
	count      = CASE WHEN rl_counters.expires_at < now() THEN 1 ELSE rl_counters.count + 1 END,
	expires_at = EXCLUDED.expires_at
RETURNING count`

	var count int64
	if err := ps.pool.QueryRow(ctx, q, ruleType, identifier, windowStart, expiry).Scan(&count); err != nil {
		return 0, fmt.Errorf("increment counter: %w", err)
	}
	return count, nil
}

func (ps *PostgresStore) GetCounter(ctx context.Context, ruleType, identifier string, windowStart int64) (int64, error) {
	const q = `
SELECT count FROM rl_counters
WHERE rule_type = $1 AND identifier = $2 AND window_start = $3 AND expires_at > now()`

	var count int64
	err := ps.pool.QueryRow(ctx, q, ruleType, identifier, windowStart).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get counter: %w", err)
	}
	return count, nil
}

func (ps *PostgresStore) ActiveCounters(ctx context.Context) (map[string]int, error) {
	const q = `
SELECT rule_type, COUNT(DISTINCT identifier) FROM rl_counters
WHERE expires_at > now()
GROUP BY rule_type`

	rows, err := ps.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query active counters: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var ruleType string
		var n int64
		if err := rows.Scan(&ruleType, &n); err != nil {
			return nil, fmt.Errorf("scan active counters: %w", err)
		}
		counts[ruleType] = int(n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active counters: %w", err)
	}
	return counts, nil
}

func (ps *PostgresStore) SetRateLimitRule(ctx context.Context, rule *models.RateLimitRule, ttl time.Duration) error {
	data, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("marshal rule: %w", err)
	}

	const q = `
INSERT INTO rl_rules (rule_type, identifier, rule, expires_at)
VALUES ($1, $2, $3, CASE WHEN $4::interval IS NULL THEN NULL ELSE now() + $4::interval END)
ON CONFLICT (rule_type, identifier) DO UPDATE SET
	rule = EXCLUDED.rule, expires_at = EXCLUDED.expires_at`

	var interval *time.Duration
	if ttl > 0 {
		interval = &ttl
	}
	if _, err := ps.pool.Exec(ctx, q, rule.Type, rule.Identifier, data, interval); err != nil {
		return fmt.Errorf("set rule: %w", err)
	}
	return nil
}

func (ps *PostgresStore) GetRateLimitRule(ctx context.Context, ruleType, identifier string) (*models.RateLimitRule, error) {
	const q = `
SELECT rule FROM rl_rules
WHERE rule_type = $1 AND identifier = $2 AND (expires_at IS NULL OR expires_at > now())`

	var data []byte
	err := ps.pool.QueryRow(ctx, q, ruleType, identifier).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}

	var rule models.RateLimitRule
	if err := json.Unmarshal(data, &rule); err != nil {
		return nil, fmt.Errorf("unmarshal rule: %w", err)
	}
	return &rule, nil
}

func (ps *PostgresStore) DeleteRateLimitRule(ctx context.Context, ruleType, identifier string) error {
	const q = `DELETE FROM rl_rules WHERE rule_type = $1 AND identifier = $2`

	tag, err := ps.pool.Exec(ctx, q, ruleType, identifier)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (ps *PostgresStore) SaveWAFRule(ctx context.Context, rule *models.WAFRule) error {
	data, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("marshal waf rule: %w", err)
	}

	const q = `
INSERT INTO waf_rules (id, rule) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET rule = EXCLUDED.rule`

	if _, err := ps.pool.Exec(ctx, q, rule.ID, data); err != nil {
		return fmt.Errorf("save waf rule: %w", err)
	}
	return nil
}

func (ps *PostgresStore) ListWAFRules(ctx context.Context) ([]*models.WAFRule, error) {
	rows, err := ps.pool.Query(ctx, `SELECT rule FROM waf_rules`)
	if err != nil {
		return nil, fmt.Errorf("list waf rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.WAFRule
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan waf rule: %w", err)
		}
		var rule models.WAFRule
		if err := json.Unmarshal(data, &rule); err != nil {
			return nil, fmt.Errorf("unmarshal waf rule: %w", err)
		}
		rules = append(rules, &rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate waf rules: %w", err)
	}
	return rules, nil
}

func (ps *PostgresStore) DeleteWAFRule(ctx context.Context, id string) error {
	tag, err := ps.pool.Exec(ctx, `DELETE FROM waf_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete waf rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (ps *PostgresStore) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

func (ps *PostgresStore) Close() error {
	ps.pool.Close()
	return nil
}
