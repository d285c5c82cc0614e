package store

import (
	"context"
	"sync"
	"time"

	"gatekeeper/internal/models"
)

type counterEntry struct {
	count     int64
	expiresAt time.Time
}

type ruleEntry struct {
	rule      models.RateLimitRule
	expiresAt time.Time // zero means no expiry
}

// MemoryStore implements the Store interface with in-process maps. It is
// intended for development and tests; counters are not shared across
// instances, so distributed enforcement degrades to per-instance enforcement.
type MemoryStore struct {
	mu       sync.RWMutex
	counters map[string]*counterEntry // key: type:identifier:windowStart
	rules    map[string]*ruleEntry    // key: type:identifier
	wafRules map[string]*models.WAFRule

	cleanupInterval time.Duration
	done            chan struct{}
	closeOnce       sync.Once

	now func() time.Time
}

// NewMemoryStore creates an in-memory store. A background goroutine evicts
// expired entries every cleanupInterval; pass 0 to disable it (tests rely on
// lazy expiry alone).
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	m := &MemoryStore{
		counters:        make(map[string]*counterEntry),
		rules:           make(map[string]*ruleEntry),
		wafRules:        make(map[string]*models.WAFRule),
		cleanupInterval: cleanupInterval,
		done:            make(chan struct{}),
		now:             time.Now,
	}
	if cleanupInterval > 0 {
		go m.cleanup()
	}
	return m
}

func counterKey(ruleType, identifier string, windowStart int64) string {
	return ruleType + ":" + identifier + ":" + formatInt(windowStart)
}

func ruleKey(ruleType, identifier string) string {
	return ruleType + ":" + identifier
}

func (m *MemoryStore) IncrementCounter(ctx context.Context, ruleType, identifier string, windowStart int64, expiry time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	key := counterKey(ruleType, identifier, windowStart)
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.counters[key]
	if !ok || now.After(e.expiresAt) {
		e = &counterEntry{}
		m.counters[key] = e
	}
	e.count++
	e.expiresAt = now.Add(expiry)
	return e.count, nil
}

func (m *MemoryStore) GetCounter(ctx context.Context, ruleType, identifier string, windowStart int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	key := counterKey(ruleType, identifier, windowStart)

	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.counters[key]
	if !ok || m.now().After(e.expiresAt) {
		return 0, nil
	}
	return e.count, nil
}

func (m *MemoryStore) ActiveCounters(ctx context.Context) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := m.now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	// Distinct identifiers per type; a single identifier may hold counters
	// for both the current and previous window.
	seen := make(map[string]map[string]bool)
	for key, e := range m.counters {
		if now.After(e.expiresAt) {
			continue
		}
		ruleType, identifier, ok := splitCounterKey(key)
		if !ok {
			continue
		}
		if seen[ruleType] == nil {
			seen[ruleType] = make(map[string]bool)
		}
		seen[ruleType][identifier] = true
	}

	counts := make(map[string]int, len(seen))
	for ruleType, ids := range seen {
		counts[ruleType] = len(ids)
	}
	return counts, nil
}

func (m *MemoryStore) SetRateLimitRule(ctx context.Context, rule *models.RateLimitRule, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry := &ruleEntry{rule: *rule}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[ruleKey(rule.Type, rule.Identifier)] = entry
	return nil
}

func (m *MemoryStore) GetRateLimitRule(ctx context.Context, ruleType, identifier string) (*models.RateLimitRule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.rules[ruleKey(ruleType, identifier)]
	if !ok || (!e.expiresAt.IsZero() && m.now().After(e.expiresAt)) {
		return nil, ErrNotFound
	}
	rule := e.rule
	return &rule, nil
}

func (m *MemoryStore) DeleteRateLimitRule(ctx context.Context, ruleType, identifier string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := ruleKey(ruleType, identifier)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rules[key]; !ok {
		return ErrNotFound
	}
	delete(m.rules, key)
	return nil
}

func (m *MemoryStore) SaveWAFRule(ctx context.Context, rule *models.WAFRule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ruleCopy := *rule

	m.mu.Lock()
	defer m.mu.Unlock()
	m.wafRules[rule.ID] = &ruleCopy
	return nil
}

func (m *MemoryStore) ListWAFRules(ctx context.Context) ([]*models.WAFRule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	rules := make([]*models.WAFRule, 0, len(m.wafRules))
	for _, rule := range m.wafRules {
		ruleCopy := *rule
		rules = append(rules, &ruleCopy)
	}
	return rules, nil
}

func (m *MemoryStore) DeleteWAFRule(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.wafRules[id]; !ok {
		return ErrNotFound
	}
	delete(m.wafRules, id)
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close stops the background cleanup goroutine.
func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryStore) cleanup() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictExpired()
		}
	}
}

func (m *MemoryStore) evictExpired() {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, e := range m.counters {
		if now.After(e.expiresAt) {
			delete(m.counters, key)
		}
	}
	for key, e := range m.rules {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(m.rules, key)
		}
	}
}
