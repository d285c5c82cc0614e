package models

import (
	"errors"
	"fmt"
	"regexp"
)

// WAF rule categories. Each built-in rule belongs to exactly one category;
// custom rules may use any of them.
const (
	WAFRuleTypeSQLInjection      = "sql_injection"
	WAFRuleTypeXSS               = "xss"
	WAFRuleTypePathTraversal     = "path_traversal"
	WAFRuleTypeCommandInjection  = "command_injection"
	WAFRuleTypeCSRF              = "csrf"
	WAFRuleTypeFileInclusion     = "file_inclusion"
	WAFRuleTypeProtocolViolation = "protocol_violation"
	WAFRuleTypeAnomalyDetection  = "anomaly_detection"
	WAFRuleTypeIPReputation      = "ip_reputation"
	WAFRuleTypeRateLimiting      = "rate_limiting"
)

// WAFRuleTypes lists every supported WAF rule category.
var WAFRuleTypes = []string{
	WAFRuleTypeSQLInjection,
	WAFRuleTypeXSS,
	WAFRuleTypePathTraversal,
	WAFRuleTypeCommandInjection,
	WAFRuleTypeCSRF,
	WAFRuleTypeFileInclusion,
	WAFRuleTypeProtocolViolation,
	WAFRuleTypeAnomalyDetection,
	WAFRuleTypeIPReputation,
	WAFRuleTypeRateLimiting,
}

// Actions a WAF rule can request when it matches.
const (
	WAFActionAllow     = "allow"
	WAFActionBlock     = "block"
	WAFActionChallenge = "challenge"
	WAFActionLog       = "log"
)

// Rule provenance reported by the rule listing endpoint.
const (
	WAFSourceDefault = "default"
	WAFSourceCustom  = "custom"
)

// MaxRiskScore is the saturation ceiling for aggregated severities.
const MaxRiskScore = 100

// WAFRule is a single pattern-matching firewall rule. Built-in rules are
// loaded at startup and never persisted; custom rules live in the shared
// store. IDs must be unique across both.
type WAFRule struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	RuleType      string   `json:"rule_type"`
	Pattern       string   `json:"pattern"`
	Action        string   `json:"action"`
	Enabled       bool     `json:"enabled"`
	Severity      int      `json:"severity"`
	Tags          []string `json:"tags,omitempty"`
	CustomMessage string   `json:"custom_message,omitempty"`
}

// Validate checks the rule for structural correctness, including that the
// pattern compiles. Invalid patterns are rejected at mutation time so they
// can never reach the analysis path.
func (r *WAFRule) Validate() error {
	if r.ID == "" {
		return errors.New("rule id cannot be empty")
	}
	if r.Name == "" {
		return errors.New("rule name cannot be empty")
	}
	if !isValidWAFRuleType(r.RuleType) {
		return fmt.Errorf("invalid rule type: %s", r.RuleType)
	}
	if !isValidWAFAction(r.Action) {
		return fmt.Errorf("invalid action: %s", r.Action)
	}
	if r.Severity < 1 || r.Severity > 10 {
		return errors.New("severity must be between 1 and 10")
	}
	if r.Pattern == "" {
		return errors.New("pattern cannot be empty")
	}
	if _, err := regexp.Compile(r.Pattern); err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}
	return nil
}

func isValidWAFRuleType(t string) bool {
	for _, rt := range WAFRuleTypes {
		if t == rt {
			return true
		}
	}
	return false
}

func isValidWAFAction(a string) bool {
	switch a {
	case WAFActionAllow, WAFActionBlock, WAFActionChallenge, WAFActionLog:
		return true
	}
	return false
}

// MatchedRule records one rule that matched during analysis. A rule matches
// at most once per request; MatchedIn names the first field it matched.
type MatchedRule struct {
	RuleID    string   `json:"rule_id"`
	RuleName  string   `json:"rule_name"`
	RuleType  string   `json:"rule_type"`
	Action    string   `json:"action"`
	Severity  int      `json:"severity"`
	MatchedIn string   `json:"matched_in"`
	Pattern   string   `json:"pattern"`
	Tags      []string `json:"tags,omitempty"`
}

// WAFResult is the outcome of analyzing one request descriptor.
type WAFResult struct {
	Action           string        `json:"action"`
	MatchedRules     []MatchedRule `json:"matched_rules"`
	RiskScore        int           `json:"risk_score"`
	ProcessingTimeMs float64       `json:"processing_time_ms"`
	Reason           string        `json:"reason,omitempty"`
}

// WAFRuleInfo is a rule tagged with its provenance for listing.
type WAFRuleInfo struct {
	WAFRule
	Source string `json:"source"`
}

// WAFStatistics summarizes the active rule set.
type WAFStatistics struct {
	TotalRules    int            `json:"total_rules"`
	EnabledRules  int            `json:"enabled_rules"`
	DisabledRules int            `json:"disabled_rules"`
	DefaultRules  int            `json:"default_rules"`
	CustomRules   int            `json:"custom_rules"`
	ByRuleType    map[string]int `json:"by_rule_type"`
}

// WAFRuleTypeInfo describes one rule category for the metadata endpoint.
type WAFRuleTypeInfo struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}
