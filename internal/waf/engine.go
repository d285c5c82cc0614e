// Package waf implements the pattern-matching firewall: rule lifecycle,
// pattern compilation, and request analysis. Analysis is fail-open by policy,
// a degraded WAF must never turn into a denial of service for legitimate
// traffic, so every internal failure is converted into an allow result with a
// reason attached.
package waf

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"gatekeeper/internal/models"
	"gatekeeper/internal/store"
)

// ErrBuiltinRule is returned when a mutation targets a built-in rule.
var ErrBuiltinRule = fmt.Errorf("built-in rules cannot be modified")

// Engine evaluates request descriptors against the compiled rule set.
// The hot path (Analyze) reads an atomic snapshot and takes no locks;
// mutations serialize under mu and swap in a freshly built snapshot.
type Engine struct {
	store store.Store

	mu       sync.Mutex // serializes rule mutations and snapshot rebuilds
	builtin  []models.WAFRule
	custom   map[string]models.WAFRule
	patterns map[string]*regexp.Regexp // compiled pattern cache by rule id

	snapshot atomic.Pointer[compiledSet]
}

// NewEngine creates a WAF engine with the built-in rule set plus any custom
// rules persisted in the store. A store failure during the initial load is
// returned to the caller but leaves the engine operational with built-in
// rules only, per the fail-open policy.
func NewEngine(ctx context.Context, st store.Store) (*Engine, error) {
	e := &Engine{
		store:    st,
		builtin:  BuiltinRules(),
		custom:   make(map[string]models.WAFRule),
		patterns: make(map[string]*regexp.Regexp),
	}

	for i := range e.builtin {
		rule := &e.builtin[i]
		re, err := compilePattern(rule)
		if err != nil {
			// A built-in pattern that fails to compile is a programming
			// error; skip it rather than refusing to start.
			slog.Error("built-in WAF rule failed to compile", "rule_id", rule.ID, "error", err)
			continue
		}
		e.patterns[rule.ID] = re
	}

	var loadErr error
	if st != nil {
		custom, err := st.ListWAFRules(ctx)
		if err != nil {
			loadErr = fmt.Errorf("load custom WAF rules: %w", err)
		}
		for _, rule := range custom {
			re, err := compilePattern(rule)
			if err != nil {
				slog.Warn("skipping persisted WAF rule with invalid pattern", "rule_id", rule.ID, "error", err)
				continue
			}
			e.custom[rule.ID] = *rule
			e.patterns[rule.ID] = re
		}
	}

	e.snapshot.Store(buildSet(e.builtin, e.custom, e.patterns))
	return e, loadErr
}

// Analyze evaluates a request descriptor against every enabled compiled rule.
// It never returns an error: internal failures degrade to an allow result
// whose reason describes the failure.
func (e *Engine) Analyze(req *models.AnalyzeRequest) (result *models.WAFResult) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("WAF analysis panicked, failing open", "panic", r)
			result = &models.WAFResult{
				Action:           models.WAFActionAllow,
				MatchedRules:     []models.MatchedRule{},
				ProcessingTimeMs: float64(time.Since(start).Microseconds()) / 1000,
				Reason:           fmt.Sprintf("analysis error: %v", r),
			}
		}
	}()

	set := e.snapshot.Load()
	if set == nil {
		return &models.WAFResult{
			Action:           models.WAFActionAllow,
			MatchedRules:     []models.MatchedRule{},
			ProcessingTimeMs: float64(time.Since(start).Microseconds()) / 1000,
			Reason:           "rule set not loaded",
		}
	}

	fields := normalizeFields(req)

	matched := make([]models.MatchedRule, 0, 4)
	riskScore := 0
	for _, cr := range set.rules {
		// At most one match per rule: the first field that matches wins, so
		// a payload appearing in both path and body cannot double its
		// severity contribution.
		for _, f := range fields {
			if f.value == "" {
				continue
			}
			if cr.re.MatchString(f.value) {
				matched = append(matched, models.MatchedRule{
					RuleID:    cr.rule.ID,
					RuleName:  cr.rule.Name,
					RuleType:  cr.rule.RuleType,
					Action:    cr.rule.Action,
					Severity:  cr.rule.Severity,
					MatchedIn: f.name,
					Pattern:   cr.rule.Pattern,
					Tags:      cr.rule.Tags,
				})
				riskScore += cr.rule.Severity
				break
			}
		}
	}
	if riskScore > models.MaxRiskScore {
		riskScore = models.MaxRiskScore
	}

	action, reason := resolveAction(matched)
	return &models.WAFResult{
		Action:           action,
		MatchedRules:     matched,
		RiskScore:        riskScore,
		ProcessingTimeMs: float64(time.Since(start).Microseconds()) / 1000,
		Reason:           reason,
	}
}

// resolveAction applies the strict precedence block > challenge > log over
// the matched rules.
func resolveAction(matched []models.MatchedRule) (string, string) {
	if len(matched) == 0 {
		return models.WAFActionAllow, ""
	}

	blocks, challenges := 0, 0
	for _, m := range matched {
		switch m.Action {
		case models.WAFActionBlock:
			blocks++
		case models.WAFActionChallenge:
			challenges++
		}
	}

	switch {
	case blocks > 0:
		return models.WAFActionBlock, fmt.Sprintf("Blocked by %d rule(s)", blocks)
	case challenges > 0:
		return models.WAFActionChallenge, fmt.Sprintf("Challenge required by %d rule(s)", challenges)
	default:
		return models.WAFActionLog, fmt.Sprintf("Matched %d rule(s)", len(matched))
	}
}

// AddRule validates, persists, and activates a custom rule. Rule ids must be
// unique across built-in and custom rules; an invalid pattern is rejected
// here and never reaches the analysis path.
func (e *Engine) AddRule(ctx context.Context, rule *models.WAFRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.builtin {
		if e.builtin[i].ID == rule.ID {
			return fmt.Errorf("rule id %s collides with a built-in rule: %w", rule.ID, ErrBuiltinRule)
		}
	}

	re, err := compilePattern(rule)
	if err != nil {
		return err
	}

	if err := e.store.SaveWAFRule(ctx, rule); err != nil {
		return fmt.Errorf("persist rule %s: %w", rule.ID, err)
	}

	e.custom[rule.ID] = *rule
	e.patterns[rule.ID] = re
	e.snapshot.Store(buildSet(e.builtin, e.custom, e.patterns))
	return nil
}

// RemoveRule deletes a custom rule and rebuilds the snapshot. Built-in rules
// cannot be removed; an unknown id reports store.ErrNotFound.
func (e *Engine) RemoveRule(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.builtin {
		if e.builtin[i].ID == id {
			return ErrBuiltinRule
		}
	}

	if _, ok := e.custom[id]; !ok {
		return store.ErrNotFound
	}

	if err := e.store.DeleteWAFRule(ctx, id); err != nil && !store.IsNotFound(err) {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}

	delete(e.custom, id)
	delete(e.patterns, id)
	e.snapshot.Store(buildSet(e.builtin, e.custom, e.patterns))
	return nil
}

// Rules returns every rule, built-in and custom, tagged with its provenance.
func (e *Engine) Rules() []models.WAFRuleInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	infos := make([]models.WAFRuleInfo, 0, len(e.builtin)+len(e.custom))
	for _, rule := range e.builtin {
		infos = append(infos, models.WAFRuleInfo{WAFRule: rule, Source: models.WAFSourceDefault})
	}

	ids := make([]string, 0, len(e.custom))
	for id := range e.custom {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		infos = append(infos, models.WAFRuleInfo{WAFRule: e.custom[id], Source: models.WAFSourceCustom})
	}
	return infos
}

// Statistics summarizes the active rule set by provenance, enablement, and
// category.
func (e *Engine) Statistics() *models.WAFStatistics {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := &models.WAFStatistics{
		ByRuleType: make(map[string]int),
	}
	count := func(rule *models.WAFRule) {
		stats.TotalRules++
		if rule.Enabled {
			stats.EnabledRules++
		} else {
			stats.DisabledRules++
		}
		stats.ByRuleType[rule.RuleType]++
	}

	for i := range e.builtin {
		count(&e.builtin[i])
		stats.DefaultRules++
	}
	for id := range e.custom {
		rule := e.custom[id]
		count(&rule)
		stats.CustomRules++
	}
	return stats
}
