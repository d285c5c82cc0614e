package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"gatekeeper/internal/models"
	"gatekeeper/internal/store"
)

// InstrumentedStore wraps a store.Store implementation with OpenTelemetry
// tracing and metrics. Every store round-trip gets a span, a latency sample,
// and an error count, which is how store unavailability shows up on the
// dashboards before it shows up in denials.
type InstrumentedStore struct {
	inner    store.Store
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewInstrumentedStore creates a store wrapper recording trace spans,
// operation latency histograms, and error counters for every store call.
func NewInstrumentedStore(inner store.Store) (*InstrumentedStore, error) {
	tracer := otel.Tracer("gatekeeper/store")
	meter := otel.Meter("gatekeeper/store")

	duration, err := meter.Float64Histogram(
		"store.operation.duration",
		metric.WithDescription("Duration of store operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"store.operation.errors",
		metric.WithDescription("Number of store operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStore{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedStore) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "store."+operation,
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("store.operation", operation),
		}, attrs...)...),
	)
}

func (s *InstrumentedStore) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("operation", operation))
	s.duration.Record(ctx, time.Since(start).Seconds(), attrs)

	// A rule-lookup miss is an expected outcome, not a store failure.
	if err != nil && !store.IsNotFound(err) {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (s *InstrumentedStore) IncrementCounter(ctx context.Context, ruleType, identifier string, windowStart int64, expiry time.Duration) (int64, error) {
	ctx, span := s.startSpan(ctx, "IncrementCounter", attribute.String("rule_type", ruleType))
	start := time.Now()
	count, err := s.inner.IncrementCounter(ctx, ruleType, identifier, windowStart, expiry)
	s.record(ctx, span, "IncrementCounter", start, err)
	return count, err
}

func (s *InstrumentedStore) GetCounter(ctx context.Context, ruleType, identifier string, windowStart int64) (int64, error) {
	ctx, span := s.startSpan(ctx, "GetCounter", attribute.String("rule_type", ruleType))
	start := time.Now()
	count, err := s.inner.GetCounter(ctx, ruleType, identifier, windowStart)
	s.record(ctx, span, "GetCounter", start, err)
	return count, err
}

func (s *InstrumentedStore) ActiveCounters(ctx context.Context) (map[string]int, error) {
	ctx, span := s.startSpan(ctx, "ActiveCounters")
	start := time.Now()
	counts, err := s.inner.ActiveCounters(ctx)
	s.record(ctx, span, "ActiveCounters", start, err)
	return counts, err
}

func (s *InstrumentedStore) SetRateLimitRule(ctx context.Context, rule *models.RateLimitRule, ttl time.Duration) error {
	ctx, span := s.startSpan(ctx, "SetRateLimitRule", attribute.String("rule_type", rule.Type))
	start := time.Now()
	err := s.inner.SetRateLimitRule(ctx, rule, ttl)
	s.record(ctx, span, "SetRateLimitRule", start, err)
	return err
}

func (s *InstrumentedStore) GetRateLimitRule(ctx context.Context, ruleType, identifier string) (*models.RateLimitRule, error) {
	ctx, span := s.startSpan(ctx, "GetRateLimitRule", attribute.String("rule_type", ruleType))
	start := time.Now()
	rule, err := s.inner.GetRateLimitRule(ctx, ruleType, identifier)
	s.record(ctx, span, "GetRateLimitRule", start, err)
	return rule, err
}

func (s *InstrumentedStore) DeleteRateLimitRule(ctx context.Context, ruleType, identifier string) error {
	ctx, span := s.startSpan(ctx, "DeleteRateLimitRule", attribute.String("rule_type", ruleType))
	start := time.Now()
	err := s.inner.DeleteRateLimitRule(ctx, ruleType, identifier)
	s.record(ctx, span, "DeleteRateLimitRule", start, err)
	return err
}

func (s *InstrumentedStore) SaveWAFRule(ctx context.Context, rule *models.WAFRule) error {
	ctx, span := s.startSpan(ctx, "SaveWAFRule", attribute.String("rule_id", rule.ID))
	start := time.Now()
	err := s.inner.SaveWAFRule(ctx, rule)
	s.record(ctx, span, "SaveWAFRule", start, err)
	return err
}

func (s *InstrumentedStore) ListWAFRules(ctx context.Context) ([]*models.WAFRule, error) {
	ctx, span := s.startSpan(ctx, "ListWAFRules")
	start := time.Now()
	rules, err := s.inner.ListWAFRules(ctx)
	s.record(ctx, span, "ListWAFRules", start, err)
	return rules, err
}

func (s *InstrumentedStore) DeleteWAFRule(ctx context.Context, id string) error {
	ctx, span := s.startSpan(ctx, "DeleteWAFRule", attribute.String("rule_id", id))
	start := time.Now()
	err := s.inner.DeleteWAFRule(ctx, id)
	s.record(ctx, span, "DeleteWAFRule", start, err)
	return err
}

func (s *InstrumentedStore) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "Ping", start, err)
	return err
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}
