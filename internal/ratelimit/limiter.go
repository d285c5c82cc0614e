package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"gatekeeper/internal/models"
)

// Limiter computes allow/deny decisions using the weighted two-window
// approximation. All counter state lives in the shared store, so every
// gateway instance enforces the same limits. Store errors surface to the
// caller unshielded: capacity protection fails closed by default.
type Limiter struct {
	store           counterStore
	resolver        *RuleResolver
	burstMultiplier float64

	now func() time.Time
}

// counterStore is the slice of store.Store the limiter needs.
type counterStore interface {
	IncrementCounter(ctx context.Context, ruleType, identifier string, windowStart int64, expiry time.Duration) (int64, error)
	GetCounter(ctx context.Context, ruleType, identifier string, windowStart int64) (int64, error)
}

// Option configures optional limiter behavior.
type Option func(*Limiter)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a limiter over the given counter store and rule resolver.
func New(st counterStore, resolver *RuleResolver, burstMultiplier float64, opts ...Option) *Limiter {
	l := &Limiter{
		store:           st,
		resolver:        resolver,
		burstMultiplier: burstMultiplier,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check decides whether one more request for (ruleType, identifier) fits
// under the governing rule. override, when non-nil, is a one-shot rule that
// is not persisted. The returned status is never nil when err is nil.
//
// The counter read and the subsequent increment are two separate store
// operations; concurrent checks may transiently over- or under-count by the
// number of in-flight requests. That slack is inherent to the approximation,
// callers must not rely on exact enforcement at the boundary.
func (l *Limiter) Check(ctx context.Context, ruleType, identifier string, override *models.RateLimitRule) (*models.RateLimitStatus, error) {
	rule, found, err := l.resolver.Resolve(ctx, ruleType, identifier, override)
	if err != nil {
		return nil, err
	}
	if !found {
		// Unconfigured type: fail open, nothing to count against.
		return &models.RateLimitStatus{
			Allowed:   true,
			Limit:     models.UnlimitedLimit,
			Remaining: models.UnlimitedLimit,
			ResetTime: l.now().Unix(),
		}, nil
	}

	window := int64(rule.WindowSeconds)
	now := l.now()
	nowSec := float64(now.UnixNano()) / float64(time.Second)
	windowStart := now.Unix() / window * window
	prevWindowStart := windowStart - window

	current, err := l.store.GetCounter(ctx, ruleType, identifier, windowStart)
	if err != nil {
		return nil, fmt.Errorf("read current window: %w", err)
	}
	prev, err := l.store.GetCounter(ctx, ruleType, identifier, prevWindowStart)
	if err != nil {
		return nil, fmt.Errorf("read previous window: %w", err)
	}

	elapsed := nowSec - float64(windowStart)
	weight := 1 - elapsed/float64(window)
	total := float64(current) + float64(prev)*weight

	resetTime := windowStart + window
	burst := int64(rule.EffectiveBurst(l.burstMultiplier))

	if total >= float64(rule.Limit) || current >= burst {
		retryAfter := resetTime - int64(math.Floor(nowSec))
		if retryAfter < 1 {
			retryAfter = 1
		}
		return &models.RateLimitStatus{
			Allowed:    false,
			Limit:      rule.Limit,
			Remaining:  0,
			ResetTime:  resetTime,
			RetryAfter: retryAfter,
		}, nil
	}

	// Expiry of 2x the window keeps the counter readable while it serves as
	// the next window's previous-window value.
	if _, err := l.store.IncrementCounter(ctx, ruleType, identifier, windowStart, 2*rule.Window()); err != nil {
		return nil, fmt.Errorf("increment window counter: %w", err)
	}

	remaining := rule.Limit - int(math.Floor(total)) - 1
	if remaining < 0 {
		remaining = 0
	}
	return &models.RateLimitStatus{
		Allowed:   true,
		Limit:     rule.Limit,
		Remaining: remaining,
		ResetTime: resetTime,
	}, nil
}
