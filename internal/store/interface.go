// Package store provides the shared key-value store abstraction used by both
// admission engines. It holds sliding-window counters keyed by
// (rule type, identifier, window start), custom rate-limit rules keyed by
// (rule type, identifier), and custom WAF rules keyed by rule id.
//
// Every gateway instance must talk to the same store for distributed
// enforcement; the backend must support atomic increment-with-expiry for the
// window counters. Implementations are safe for concurrent use.
package store

import (
	"context"
	"time"

	"gatekeeper/internal/models"
)

// Store defines the persistence contract for counters and custom rules.
type Store interface {
	// IncrementCounter atomically increments the window counter and sets its
	// expiry, returning the new value. The expiry covers the overlap with the
	// following window's previous-window read.
	IncrementCounter(ctx context.Context, ruleType, identifier string, windowStart int64, expiry time.Duration) (int64, error)

	// GetCounter returns the counter value for a window, 0 if absent or expired.
	GetCounter(ctx context.Context, ruleType, identifier string, windowStart int64) (int64, error)

	// ActiveCounters returns the number of distinct identifiers with live
	// counters, grouped by rule type.
	ActiveCounters(ctx context.Context) (map[string]int, error)

	// SetRateLimitRule persists a custom rule. A zero ttl means no expiry.
	SetRateLimitRule(ctx context.Context, rule *models.RateLimitRule, ttl time.Duration) error

	// GetRateLimitRule returns the custom rule for (ruleType, identifier),
	// or ErrNotFound.
	GetRateLimitRule(ctx context.Context, ruleType, identifier string) (*models.RateLimitRule, error)

	// DeleteRateLimitRule removes a custom rule, returning ErrNotFound if absent.
	DeleteRateLimitRule(ctx context.Context, ruleType, identifier string) error

	// SaveWAFRule persists a custom WAF rule keyed by its id.
	SaveWAFRule(ctx context.Context, rule *models.WAFRule) error

	// ListWAFRules returns all persisted custom WAF rules.
	ListWAFRules(ctx context.Context) ([]*models.WAFRule, error)

	// DeleteWAFRule removes a custom WAF rule, returning ErrNotFound if absent.
	DeleteWAFRule(ctx context.Context, id string) error

	// Ping reports store reachability for health checks.
	Ping(ctx context.Context) error

	// Close releases the backend connection and any background resources.
	Close() error
}
