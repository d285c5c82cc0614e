// Package models defines the data structures shared across the gatekeeper
// service: rate-limit rules and statuses, WAF rules and results, request and
// response envelopes, and service configuration.
package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Rule type constants identify what a rate-limit rule applies to.
const (
	RuleTypeIP       = "ip"
	RuleTypeUser     = "user"
	RuleTypeAPIKey   = "api_key"
	RuleTypeEndpoint = "endpoint"
	RuleTypeGlobal   = "global"
)

// WildcardIdentifier marks a rule as the default for its type.
const WildcardIdentifier = "*"

// UnlimitedLimit is the sentinel limit reported when a check runs against a
// rule type that has neither a default nor a custom rule configured. Such
// checks are allowed unconditionally.
const UnlimitedLimit = math.MaxInt32

// ValidRuleTypes lists every supported rule type.
var ValidRuleTypes = []string{RuleTypeIP, RuleTypeUser, RuleTypeAPIKey, RuleTypeEndpoint, RuleTypeGlobal}

// IsValidRuleType reports whether t names a supported rule type.
func IsValidRuleType(t string) bool {
	for _, vt := range ValidRuleTypes {
		if t == vt {
			return true
		}
	}
	return false
}

// RateLimitRule describes how many requests an identifier may issue within a
// window. Identity is (Type, Identifier); the wildcard identifier "*" denotes
// the in-memory default for the type and is never auto-applied from the store.
type RateLimitRule struct {
	Type          string `json:"type" yaml:"type"`
	Identifier    string `json:"identifier" yaml:"identifier"`
	Limit         int    `json:"limit" yaml:"limit"`
	WindowSeconds int    `json:"window" yaml:"window"`
	BurstLimit    int    `json:"burst_limit,omitempty" yaml:"burst_limit,omitempty"`
}

// Validate checks the rule for structural correctness.
func (r *RateLimitRule) Validate() error {
	if !IsValidRuleType(r.Type) {
		return fmt.Errorf("invalid rule type: %s", r.Type)
	}
	if r.Identifier == "" {
		return errors.New("identifier cannot be empty")
	}
	if r.Limit <= 0 {
		return errors.New("limit must be positive")
	}
	if r.WindowSeconds <= 0 {
		return errors.New("window must be positive")
	}
	if r.BurstLimit < 0 {
		return errors.New("burst limit cannot be negative")
	}
	return nil
}

// Window returns the rule window as a duration.
func (r *RateLimitRule) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// EffectiveBurst returns the burst limit, deriving it from the base limit and
// the configured multiplier when the rule does not set one explicitly.
func (r *RateLimitRule) EffectiveBurst(multiplier float64) int {
	if r.BurstLimit > 0 {
		return r.BurstLimit
	}
	return int(float64(r.Limit) * multiplier)
}

// RateLimitStatus is the outcome of a single limiter check. It is computed
// per request and never persisted.
type RateLimitStatus struct {
	Allowed    bool  `json:"allowed"`
	Limit      int   `json:"limit"`
	Remaining  int   `json:"remaining"`
	ResetTime  int64 `json:"reset_time"`            // unix seconds when the current window ends
	RetryAfter int64 `json:"retry_after,omitempty"` // seconds; present only when denied
}
