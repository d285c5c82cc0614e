package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"gatekeeper/internal/models"
)

// RedisStore implements the Store interface against a shared Redis instance.
// This is the production backend: INCR+EXPIRE gives the atomic
// increment-with-expiry semantics the sliding-window approximation needs, and
// all gateway instances observe the same counters.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed store. It does not verify
// connectivity; call Ping to check reachability.
func NewRedisStore(cfg models.RedisConfig, keyPrefix string) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	return &RedisStore{
		rdb:    rdb,
		prefix: strings.Trim(keyPrefix, ":"),
	}
}

func (s *RedisStore) counterKey(ruleType, identifier string, windowStart int64) string {
	return fmt.Sprintf("%s:counter:%s:%s:%d", s.prefix, ruleType, identifier, windowStart)
}

func (s *RedisStore) ruleKey(ruleType, identifier string) string {
	return fmt.Sprintf("%s:rule:%s:%s", s.prefix, ruleType, identifier)
}

func (s *RedisStore) wafRuleKey(id string) string {
	return fmt.Sprintf("%s:waf:rule:%s", s.prefix, id)
}

func (s *RedisStore) IncrementCounter(ctx context.Context, ruleType, identifier string, windowStart int64, expiry time.Duration) (int64, error) {
	key := s.counterKey(ruleType, identifier, windowStart)

	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", key, err)
	}
	return incr.Val(), nil
}

func (s *RedisStore) GetCounter(ctx context.Context, ruleType, identifier string, windowStart int64) (int64, error) {
	key := s.counterKey(ruleType, identifier, windowStart)

	val, err := s.rdb.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get counter %s: %w", key, err)
	}
	return val, nil
}

func (s *RedisStore) ActiveCounters(ctx context.Context) (map[string]int, error) {
	pattern := s.prefix + ":counter:*"
	counterPrefix := s.prefix + ":counter:"

	seen := make(map[string]map[string]bool)
	iter := s.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		rest := strings.TrimPrefix(iter.Val(), counterPrefix)
		ruleType, identifier, ok := splitCounterKey(rest)
		if !ok {
			continue
		}
		if seen[ruleType] == nil {
			seen[ruleType] = make(map[string]bool)
		}
		seen[ruleType][identifier] = true
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan counters: %w", err)
	}

	counts := make(map[string]int, len(seen))
	for ruleType, ids := range seen {
		counts[ruleType] = len(ids)
	}
	return counts, nil
}

func (s *RedisStore) SetRateLimitRule(ctx context.Context, rule *models.RateLimitRule, ttl time.Duration) error {
	data, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("marshal rule: %w", err)
	}
	key := s.ruleKey(rule.Type, rule.Identifier)
	if err := s.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("set rule %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) GetRateLimitRule(ctx context.Context, ruleType, identifier string) (*models.RateLimitRule, error) {
	key := s.ruleKey(ruleType, identifier)

	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rule %s: %w", key, err)
	}

	var rule models.RateLimitRule
	if err := json.Unmarshal(data, &rule); err != nil {
		return nil, fmt.Errorf("unmarshal rule %s: %w", key, err)
	}
	return &rule, nil
}

func (s *RedisStore) DeleteRateLimitRule(ctx context.Context, ruleType, identifier string) error {
	key := s.ruleKey(ruleType, identifier)

	deleted, err := s.rdb.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("delete rule %s: %w", key, err)
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) SaveWAFRule(ctx context.Context, rule *models.WAFRule) error {
	data, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("marshal waf rule: %w", err)
	}
	key := s.wafRuleKey(rule.ID)
	if err := s.rdb.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("save waf rule %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) ListWAFRules(ctx context.Context) ([]*models.WAFRule, error) {
	pattern := s.prefix + ":waf:rule:*"

	var keys []string
	iter := s.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan waf rules: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget waf rules: %w", err)
	}

	rules := make([]*models.WAFRule, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Key deleted between SCAN and MGET.
			continue
		}
		var rule models.WAFRule
		if err := json.Unmarshal([]byte(raw), &rule); err != nil {
			return nil, fmt.Errorf("unmarshal waf rule: %w", err)
		}
		rules = append(rules, &rule)
	}
	return rules, nil
}

func (s *RedisStore) DeleteWAFRule(ctx context.Context, id string) error {
	key := s.wafRuleKey(id)

	deleted, err := s.rdb.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("delete waf rule %s: %w", key, err)
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
