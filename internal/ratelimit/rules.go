// Package ratelimit implements distributed sliding-window rate limiting over
// the shared key-value store. Two adjacent fixed windows are blended by
// elapsed-time weight to approximate a continuous rolling window; the
// check-then-increment sequence is intentionally non-transactional and may
// transiently over- or under-count under high concurrency.
package ratelimit

import (
	"context"
	"fmt"

	"gatekeeper/internal/models"
	"gatekeeper/internal/store"
)

// RuleResolver decides which rule governs a (rule type, identifier) pair.
// Resolution order: one-shot override from the caller, then the persisted
// custom rule for the exact identifier, then the in-memory default for the
// type. Wildcard custom rules in the store are never auto-applied; only the
// exact identifier is looked up.
type RuleResolver struct {
	store    store.Store
	defaults map[string]models.RateLimitRule
}

// NewRuleResolver builds a resolver over the given store and built-in
// defaults (at most one per rule type; later duplicates are ignored).
func NewRuleResolver(st store.Store, defaults []models.RateLimitRule) *RuleResolver {
	m := make(map[string]models.RateLimitRule, len(defaults))
	for _, rule := range defaults {
		if _, ok := m[rule.Type]; !ok {
			m[rule.Type] = rule
		}
	}
	return &RuleResolver{store: st, defaults: m}
}

// Resolve returns the governing rule, or found=false when the type has
// neither a custom rule nor a default (such checks are allowed
// unconditionally). Store errors other than a miss are surfaced to the
// caller: the limiter fails closed when rule state is unknowable.
func (r *RuleResolver) Resolve(ctx context.Context, ruleType, identifier string, override *models.RateLimitRule) (*models.RateLimitRule, bool, error) {
	if override != nil {
		return override, true, nil
	}

	rule, err := r.store.GetRateLimitRule(ctx, ruleType, identifier)
	if err == nil {
		return rule, true, nil
	}
	if !store.IsNotFound(err) {
		return nil, false, fmt.Errorf("resolve rule %s/%s: %w", ruleType, identifier, err)
	}

	if d, ok := r.defaults[ruleType]; ok {
		return &d, true, nil
	}
	return nil, false, nil
}

// Default returns the built-in default rule for a type, if any.
func (r *RuleResolver) Default(ruleType string) (models.RateLimitRule, bool) {
	d, ok := r.defaults[ruleType]
	return d, ok
}
