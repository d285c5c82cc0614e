package models

import (
	"errors"
	"fmt"
)

// AnalyzeRequest is the normalized descriptor of an inbound request handed to
// the WAF engine. The outer gateway builds it from the raw request; the
// engine never touches the wire representation directly.
type AnalyzeRequest struct {
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Headers     map[string]string `json:"headers,omitempty"`
	QueryParams map[string]string `json:"query_params,omitempty"`
	Body        string            `json:"body,omitempty"`
	IPAddress   string            `json:"ip_address,omitempty"`
}

// Validate checks the minimal fields analysis needs.
func (r *AnalyzeRequest) Validate() error {
	if r.Method == "" {
		return errors.New("method cannot be empty")
	}
	if r.Path == "" {
		return errors.New("path cannot be empty")
	}
	return nil
}

// SetRateLimitRuleRequest creates or updates a persisted custom rate-limit
// rule, optionally with a TTL after which the store forgets it.
type SetRateLimitRuleRequest struct {
	RateLimitRule
	TTLSeconds int `json:"ttl_seconds,omitempty"`
}

// Validate checks the embedded rule and the TTL.
func (r *SetRateLimitRuleRequest) Validate() error {
	if err := r.RateLimitRule.Validate(); err != nil {
		return err
	}
	if r.TTLSeconds < 0 {
		return errors.New("ttl cannot be negative")
	}
	return nil
}

// AdmissionCheckRequest asks for the composite decision: the limiter check
// for (rule_type, identifier) plus WAF analysis of the request descriptor.
type AdmissionCheckRequest struct {
	RuleType   string         `json:"rule_type"`
	Identifier string         `json:"identifier"`
	CustomRule *RateLimitRule `json:"custom_rule,omitempty"`
	Request    AnalyzeRequest `json:"request"`
}

// Validate checks identifiers and the embedded descriptor.
func (r *AdmissionCheckRequest) Validate() error {
	if !IsValidRuleType(r.RuleType) {
		return fmt.Errorf("invalid rule type: %s", r.RuleType)
	}
	if r.Identifier == "" {
		return errors.New("identifier cannot be empty")
	}
	return r.Request.Validate()
}
