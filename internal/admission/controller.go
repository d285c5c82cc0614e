// Package admission orchestrates the two enforcement engines for each
// request: the sliding-window limiter first (capacity before content), then
// the WAF. The two decisions are independent, a limiter denial does not skip
// analysis, so operators can observe both signals for the same request.
package admission

import (
	"context"
	"time"

	"gatekeeper/internal/models"
	"gatekeeper/internal/observability"
	"gatekeeper/internal/ratelimit"
	"gatekeeper/internal/waf"
)

// Controller is the public-facing orchestrator for admission decisions.
// It is stateless and safe for concurrent use.
type Controller struct {
	limiter      *ratelimit.Limiter
	waf          *waf.Engine
	metrics      *observability.AdmissionMetrics
	storeTimeout time.Duration
}

// NewController creates an admission controller. metrics may be nil when
// metrics are disabled, and wafEngine may be nil when analysis is disabled;
// a nil engine turns every analysis into an allow. storeTimeout bounds every
// store round-trip so a slow store can never hang a request indefinitely.
func NewController(limiter *ratelimit.Limiter, wafEngine *waf.Engine, metrics *observability.AdmissionMetrics, storeTimeout time.Duration) *Controller {
	return &Controller{
		limiter:      limiter,
		waf:          wafEngine,
		metrics:      metrics,
		storeTimeout: storeTimeout,
	}
}

// CheckRateLimit runs the limiter for (ruleType, identifier) under a bounded
// deadline. Store failures surface as errors: capacity protection fails
// closed by default, callers that want to fail open must do so explicitly.
func (c *Controller) CheckRateLimit(ctx context.Context, ruleType, identifier string, override *models.RateLimitRule) (*models.RateLimitStatus, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	status, err := c.limiter.Check(ctx, ruleType, identifier, override)
	if err != nil {
		c.metrics.RecordCheck(ctx, observability.EngineRateLimit, false, time.Since(start))
		return nil, NewStoreUnavailableError(err)
	}
	c.metrics.RecordCheck(ctx, observability.EngineRateLimit, status.Allowed, time.Since(start))
	return status, nil
}

// AnalyzeRequest runs the WAF over a request descriptor. It never fails:
// the engine converts internal errors into allow results.
func (c *Controller) AnalyzeRequest(ctx context.Context, req *models.AnalyzeRequest) *models.WAFResult {
	start := time.Now()
	if c.waf == nil {
		return &models.WAFResult{
			Action:       models.WAFActionAllow,
			MatchedRules: []models.MatchedRule{},
			Reason:       "analysis disabled",
		}
	}
	result := c.waf.Analyze(req)

	allowed := result.Action != models.WAFActionBlock
	c.metrics.RecordCheck(ctx, observability.EngineWAF, allowed, time.Since(start))
	for _, m := range result.MatchedRules {
		c.metrics.RecordRuleHit(ctx, m.RuleID, m.RuleType)
	}
	return result
}

// Admit runs both engines for one request and returns the composite
// decision. The limiter runs first but does not gate the WAF; only a store
// failure aborts the composite check (fail-closed). The Allowed field is the
// conventional combination, deny if either engine denies.
func (c *Controller) Admit(ctx context.Context, req *models.AdmissionCheckRequest) (*models.AdmissionDecision, error) {
	start := time.Now()

	status, err := c.CheckRateLimit(ctx, req.RuleType, req.Identifier, req.CustomRule)
	if err != nil {
		return nil, err
	}

	result := c.AnalyzeRequest(ctx, &req.Request)

	return &models.AdmissionDecision{
		Allowed:          status.Allowed && result.Action != models.WAFActionBlock,
		RateLimit:        status,
		WAF:              result,
		ProcessingTimeMs: float64(time.Since(start).Microseconds()) / 1000,
	}, nil
}
