package waf

import "gatekeeper/internal/models"

// BuiltinRules returns the fixed rule set loaded at startup. These rules are
// never persisted; custom rules from the store are merged on top. Severities
// reflect exploit impact: comment and operator probes are log-only signals,
// destructive SQL and traversal payloads block outright.
func BuiltinRules() []models.WAFRule {
	return []models.WAFRule{
		{
			ID:       "builtin-sqli-union",
			Name:     "SQL injection: UNION SELECT",
			RuleType: models.WAFRuleTypeSQLInjection,
			Pattern:  `(?i)\bunion\b.{0,20}\bselect\b`,
			Action:   models.WAFActionBlock,
			Enabled:  true,
			Severity: 8,
			Tags:     []string{"sqli", "owasp-a03"},
		},
		{
			ID:       "builtin-sqli-destructive",
			Name:     "SQL injection: destructive statement",
			RuleType: models.WAFRuleTypeSQLInjection,
			Pattern:  `(?i)\b(?:drop\s+table|truncate\s+table|delete\s+from|insert\s+into)\b`,
			Action:   models.WAFActionBlock,
			Enabled:  true,
			Severity: 9,
			Tags:     []string{"sqli", "owasp-a03"},
		},
		{
			ID:       "builtin-sqli-comment",
			Name:     "SQL injection: inline comment probe",
			RuleType: models.WAFRuleTypeSQLInjection,
			Pattern:  `(?i)(?:'\s*or\s+\d+\s*=\s*\d+|--\s|/\*[\s\S]*?\*/)`,
			Action:   models.WAFActionLog,
			Enabled:  true,
			Severity: 3,
			Tags:     []string{"sqli", "probe"},
		},
		{
			ID:       "builtin-xss-script-tag",
			Name:     "XSS: script tag",
			RuleType: models.WAFRuleTypeXSS,
			Pattern:  `(?i)<\s*script\b`,
			Action:   models.WAFActionBlock,
			Enabled:  true,
			Severity: 7,
			Tags:     []string{"xss", "owasp-a03"},
		},
		{
			ID:       "builtin-xss-event-handler",
			Name:     "XSS: inline event handler",
			RuleType: models.WAFRuleTypeXSS,
			Pattern:  `(?i)\bon(?:error|load|click|mouseover|focus)\s*=`,
			Action:   models.WAFActionChallenge,
			Enabled:  true,
			Severity: 5,
			Tags:     []string{"xss"},
		},
		{
			ID:       "builtin-xss-js-uri",
			Name:     "XSS: javascript URI",
			RuleType: models.WAFRuleTypeXSS,
			Pattern:  `(?i)javascript\s*:`,
			Action:   models.WAFActionBlock,
			Enabled:  true,
			Severity: 6,
			Tags:     []string{"xss"},
		},
		{
			ID:       "builtin-traversal-dotdot",
			Name:     "Path traversal: parent directory",
			RuleType: models.WAFRuleTypePathTraversal,
			Pattern:  `(?i)(?:\.\./|\.\.\\|%2e%2e%2f|%2e%2e%5c)`,
			Action:   models.WAFActionBlock,
			Enabled:  true,
			Severity: 8,
			Tags:     []string{"traversal", "lfi"},
		},
		{
			ID:       "builtin-traversal-sysfiles",
			Name:     "Path traversal: sensitive system paths",
			RuleType: models.WAFRuleTypePathTraversal,
			Pattern:  `(?i)(?:/etc/passwd|/etc/shadow|/proc/self|boot\.ini|win\.ini)`,
			Action:   models.WAFActionBlock,
			Enabled:  true,
			Severity: 9,
			Tags:     []string{"traversal", "lfi"},
		},
		{
			ID:       "builtin-cmdi-shell",
			Name:     "Command injection: shell metacharacters",
			RuleType: models.WAFRuleTypeCommandInjection,
			Pattern:  "(?i)(?:;|\\||&&|\\$\\(|\x60)\\s*(?:cat|ls|id|wget|curl|nc|bash|sh|cmd|powershell)\\b",
			Action:   models.WAFActionBlock,
			Enabled:  true,
			Severity: 9,
			Tags:     []string{"rce"},
		},
		{
			ID:       "builtin-cmdi-chained",
			Name:     "Command injection: chained operators",
			RuleType: models.WAFRuleTypeCommandInjection,
			Pattern:  `(?i)(?:\|\||&&|;)\s*\w+\s+(?:-\w+\s+)*/(?:etc|bin|tmp|var)\b`,
			Action:   models.WAFActionLog,
			Enabled:  true,
			Severity: 4,
			Tags:     []string{"rce", "probe"},
		},
		{
			ID:       "builtin-proto-nullbyte",
			Name:     "Protocol violation: null byte injection",
			RuleType: models.WAFRuleTypeProtocolViolation,
			Pattern:  `(?:%00|\x00)`,
			Action:   models.WAFActionBlock,
			Enabled:  true,
			Severity: 7,
			Tags:     []string{"protocol"},
		},
		{
			ID:       "builtin-proto-smuggling",
			Name:     "Protocol violation: request smuggling headers",
			RuleType: models.WAFRuleTypeProtocolViolation,
			Pattern:  `(?is)transfer-encoding\s*:\s*chunked.*content-length\s*:`,
			Action:   models.WAFActionLog,
			Enabled:  true,
			Severity: 6,
			Tags:     []string{"protocol", "smuggling"},
		},
	}
}

// ruleTypeDescriptions backs the rule-types metadata endpoint.
var ruleTypeDescriptions = map[string]string{
	models.WAFRuleTypeSQLInjection:      "SQL injection payloads in query, body, or path",
	models.WAFRuleTypeXSS:               "Cross-site scripting payloads",
	models.WAFRuleTypePathTraversal:     "Directory traversal and local file inclusion attempts",
	models.WAFRuleTypeCommandInjection:  "Shell command injection primitives",
	models.WAFRuleTypeCSRF:              "Cross-site request forgery indicators",
	models.WAFRuleTypeFileInclusion:     "Remote and local file inclusion attempts",
	models.WAFRuleTypeProtocolViolation: "Malformed or smuggling-suggestive HTTP constructs",
	models.WAFRuleTypeAnomalyDetection:  "Statistical anomalies in request shape",
	models.WAFRuleTypeIPReputation:      "Requests from known-bad source addresses",
	models.WAFRuleTypeRateLimiting:      "Abusive request rate patterns",
}

// RuleTypeInfos returns category metadata for every supported rule type.
func RuleTypeInfos() []models.WAFRuleTypeInfo {
	infos := make([]models.WAFRuleTypeInfo, 0, len(models.WAFRuleTypes))
	for _, t := range models.WAFRuleTypes {
		infos = append(infos, models.WAFRuleTypeInfo{
			Type:        t,
			Description: ruleTypeDescriptions[t],
		})
	}
	return infos
}
