package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Engine labels used on admission metrics.
const (
	EngineRateLimit = "ratelimit"
	EngineWAF       = "waf"
)

// AdmissionMetrics records per-request counters for both engines: checks,
// denials, WAF rule hits, and processing latency.
type AdmissionMetrics struct {
	checks   metric.Int64Counter
	denials  metric.Int64Counter
	ruleHits metric.Int64Counter
	duration metric.Float64Histogram
}

// NewAdmissionMetrics creates the admission metrics set on the global meter.
func NewAdmissionMetrics() (*AdmissionMetrics, error) {
	meter := otel.Meter("gatekeeper/admission")

	checks, err := meter.Int64Counter(
		"admission.checks",
		metric.WithDescription("Number of admission checks, by engine"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, err
	}

	denials, err := meter.Int64Counter(
		"admission.denials",
		metric.WithDescription("Number of denied checks, by engine"),
		metric.WithUnit("{denial}"),
	)
	if err != nil {
		return nil, err
	}

	ruleHits, err := meter.Int64Counter(
		"admission.waf.rule_hits",
		metric.WithDescription("Number of WAF rule matches, by rule id"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"admission.check.duration",
		metric.WithDescription("Duration of admission checks in seconds, by engine"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &AdmissionMetrics{
		checks:   checks,
		denials:  denials,
		ruleHits: ruleHits,
		duration: duration,
	}, nil
}

// RecordCheck records one engine's check outcome and latency.
func (m *AdmissionMetrics) RecordCheck(ctx context.Context, engine string, allowed bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("engine", engine))
	m.checks.Add(ctx, 1, attrs)
	if !allowed {
		m.denials.Add(ctx, 1, attrs)
	}
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordRuleHit records one WAF rule match.
func (m *AdmissionMetrics) RecordRuleHit(ctx context.Context, ruleID, ruleType string) {
	if m == nil {
		return
	}
	m.ruleHits.Add(ctx, 1, metric.WithAttributes(
		attribute.String("rule_id", ruleID),
		attribute.String("rule_type", ruleType),
	))
}
