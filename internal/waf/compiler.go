package waf

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"gatekeeper/internal/models"
)

// compiledRule pairs a rule with its ready-to-run pattern.
type compiledRule struct {
	rule models.WAFRule
	re   *regexp.Regexp
}

// compiledSet is the immutable, ready-to-evaluate form of all enabled rules.
// A new set is built on every rule mutation and swapped in atomically, so
// concurrent evaluators never observe a half-updated rule set.
type compiledSet struct {
	rules []compiledRule
}

// buildSet assembles a compiled set from built-in and custom rules. Disabled
// rules are excluded. patterns caches compiled regexes by rule id; rules
// whose pattern is missing from the cache are skipped (they failed to compile
// at load time and must not break analysis for the others).
func buildSet(builtin []models.WAFRule, custom map[string]models.WAFRule, patterns map[string]*regexp.Regexp) *compiledSet {
	set := &compiledSet{rules: make([]compiledRule, 0, len(builtin)+len(custom))}

	for _, rule := range builtin {
		if !rule.Enabled {
			continue
		}
		if re, ok := patterns[rule.ID]; ok {
			set.rules = append(set.rules, compiledRule{rule: rule, re: re})
		}
	}

	// Custom rules in deterministic order.
	ids := make([]string, 0, len(custom))
	for id := range custom {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		rule := custom[id]
		if !rule.Enabled {
			continue
		}
		if re, ok := patterns[id]; ok {
			set.rules = append(set.rules, compiledRule{rule: rule, re: re})
		}
	}

	return set
}

// compilePattern compiles one rule's pattern, wrapping the error with the
// rule id so mutation callers get an actionable message.
func compilePattern(rule *models.WAFRule) (*regexp.Regexp, error) {
	re, err := regexp.Compile(rule.Pattern)
	if err != nil {
		return nil, fmt.Errorf("rule %s: invalid pattern: %w", rule.ID, err)
	}
	return re, nil
}

// field is one normalized request field presented to every rule.
type field struct {
	name  string
	value string
}

// fieldOrder fixes the scan order; a rule's first matching field wins, so the
// order determines what MatchedIn reports.
var fieldOrder = []string{"path", "query", "headers", "body", "method"}

// normalizeFields builds the field set the rules scan: path, url-encoded
// query string, serialized headers, body, and method. Each string value is
// URL-decoded once, best-effort; a value that fails to decode is scanned raw
// rather than dropped.
func normalizeFields(req *models.AnalyzeRequest) []field {
	values := map[string]string{
		"path":    decodeOnce(req.Path),
		"query":   decodeOnce(encodeQuery(req.QueryParams)),
		"headers": decodeOnce(serializeHeaders(req.Headers)),
		"body":    decodeOnce(req.Body),
		"method":  req.Method,
	}

	fields := make([]field, 0, len(fieldOrder))
	for _, name := range fieldOrder {
		fields = append(fields, field{name: name, value: values[name]})
	}
	return fields
}

func decodeOnce(s string) string {
	if s == "" {
		return s
	}
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

func encodeQuery(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}

func serializeHeaders(headers map[string]string) string {
	if len(headers) == 0 {
		return ""
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(headers[k])
		b.WriteByte('\n')
	}
	return b.String()
}
