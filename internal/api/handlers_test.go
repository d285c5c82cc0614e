package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"gatekeeper/internal/admission"
	"gatekeeper/internal/models"
	"gatekeeper/internal/ratelimit"
	"gatekeeper/internal/store"
	"gatekeeper/internal/version"
	"gatekeeper/internal/waf"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*mux.Router, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore(0)
	t.Cleanup(func() { st.Close() })

	cfg := models.NewDefaultConfig()
	resolver := ratelimit.NewRuleResolver(st, cfg.Limiter.DefaultRules)
	limiter := ratelimit.New(st, resolver, cfg.Limiter.BurstMultiplier)

	engine, err := waf.NewEngine(context.Background(), st)
	require.NoError(t, err)

	controller := admission.NewController(limiter, engine, nil, cfg.Store.Timeout)
	handlers := NewHandlers(controller, engine, resolver, st, cfg, version.Info{Version: "test"})
	return SetupRoutes(handlers, cfg), st
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCheckRateLimit_Allowed(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, "POST", "/api/v1/ratelimit/check?rule_type=ip&identifier=10.0.0.1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status models.RateLimitStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Allowed)
	assert.Equal(t, 100, status.Limit)

	assert.Equal(t, "100", rec.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
}

func TestCheckRateLimit_Denied(t *testing.T) {
	router, _ := newTestRouter(t)

	override := models.RateLimitRule{
		Type:          models.RuleTypeIP,
		Identifier:    "10.0.0.1",
		Limit:         1,
		WindowSeconds: 60,
	}

	rec := doJSON(t, router, "POST", "/api/v1/ratelimit/check?rule_type=ip&identifier=10.0.0.1", override)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, "POST", "/api/v1/ratelimit/check?rule_type=ip&identifier=10.0.0.1", override)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var status models.RateLimitStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Allowed)
	assert.NotZero(t, status.RetryAfter)
}

func TestCheckRateLimit_BadRequest(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, "POST", "/api/v1/ratelimit/check?rule_type=bogus&identifier=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, "POST", "/api/v1/ratelimit/check?rule_type=ip", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckRateLimit_InvalidOverride(t *testing.T) {
	router, _ := newTestRouter(t)

	override := models.RateLimitRule{
		Type:          models.RuleTypeIP,
		Identifier:    "10.0.0.1",
		Limit:         -5,
		WindowSeconds: 60,
	}
	rec := doJSON(t, router, "POST", "/api/v1/ratelimit/check?rule_type=ip&identifier=10.0.0.1", override)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCheckRateLimit_MethodNotAllowed(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, "GET", "/api/v1/ratelimit/check?rule_type=ip&identifier=x", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRateLimitRules_CRUD(t *testing.T) {
	router, _ := newTestRouter(t)

	rule := models.SetRateLimitRuleRequest{
		RateLimitRule: models.RateLimitRule{
			Type:          models.RuleTypeUser,
			Identifier:    "user-42",
			Limit:         10,
			WindowSeconds: 30,
		},
	}

	rec := doJSON(t, router, "POST", "/api/v1/ratelimit/rules", rule)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, "GET", "/api/v1/ratelimit/rules/user/user-42", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.RateLimitRule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 10, got.Limit)

	rec = doJSON(t, router, "DELETE", "/api/v1/ratelimit/rules/user/user-42", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, "GET", "/api/v1/ratelimit/rules/user/user-42", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, "DELETE", "/api/v1/ratelimit/rules/user/user-42", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimitRules_Validation(t *testing.T) {
	router, _ := newTestRouter(t)

	rule := models.SetRateLimitRuleRequest{
		RateLimitRule: models.RateLimitRule{
			Type:          "bogus",
			Identifier:    "x",
			Limit:         10,
			WindowSeconds: 30,
		},
	}
	rec := doJSON(t, router, "POST", "/api/v1/ratelimit/rules", rule)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	req := httptest.NewRequest("POST", "/api/v1/ratelimit/rules", bytes.NewBufferString("{not json"))
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestGetRateLimitRule_WildcardReturnsDefault(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, "GET", "/api/v1/ratelimit/rules/ip/*", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.RateLimitRule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, models.WildcardIdentifier, got.Identifier)
	assert.Equal(t, 100, got.Limit)
}

func TestGetRateLimitStats(t *testing.T) {
	router, _ := newTestRouter(t)

	// Generate some active counters.
	doJSON(t, router, "POST", "/api/v1/ratelimit/check?rule_type=ip&identifier=10.0.0.1", nil)
	doJSON(t, router, "POST", "/api/v1/ratelimit/check?rule_type=ip&identifier=10.0.0.2", nil)
	doJSON(t, router, "POST", "/api/v1/ratelimit/check?rule_type=user&identifier=user-1", nil)

	rec := doJSON(t, router, "GET", "/api/v1/ratelimit/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats models.RateLimitStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.ActiveLimitsByType[models.RuleTypeIP])
	assert.Equal(t, 1, stats.ActiveLimitsByType[models.RuleTypeUser])
	assert.Equal(t, 3, stats.TotalActiveLimits)
}

func TestHealthCheck(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, path := range []string{"/health", "/api/v1/health"} {
		rec := doJSON(t, router, "GET", path, nil)
		require.Equal(t, http.StatusOK, rec.Code, "path %s", path)

		var health models.HealthCheckResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
		assert.Equal(t, models.StatusHealthy, health.Status)
		assert.Equal(t, "test", health.Version)
		assert.Contains(t, health.Components, "store")
		assert.Contains(t, health.Components, "waf")
	}
}

func TestUnknownRoute(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, "GET", "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
