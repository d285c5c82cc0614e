package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"gatekeeper/internal/admission"
	"gatekeeper/internal/api"
	"gatekeeper/internal/models"
	"gatekeeper/internal/ratelimit"
	"gatekeeper/internal/store"
	"gatekeeper/internal/version"
	"gatekeeper/internal/waf"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration tests that exercise the entire admission stack end-to-end
// through the HTTP surface, backed by the in-memory store.

func newTestServer(t *testing.T, cfg *models.Config) (*httptest.Server, store.Store) {
	t.Helper()

	st, err := store.New(cfg.Store)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	resolver := ratelimit.NewRuleResolver(st, cfg.Limiter.DefaultRules)
	limiter := ratelimit.New(st, resolver, cfg.Limiter.BurstMultiplier)

	engine, err := waf.NewEngine(context.Background(), st)
	require.NoError(t, err)

	controller := admission.NewController(limiter, engine, nil, cfg.Store.Timeout)
	handlers := api.NewHandlers(controller, engine, resolver, st, cfg, version.Info{Version: "test"})
	router := api.SetupRoutes(handlers, cfg)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, st
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(url, "application/json", &buf)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestIntegration_FullAdmissionFlow(t *testing.T) {
	cfg := models.NewDefaultConfig()
	server, _ := newTestServer(t, cfg)

	// Step 1: Create a tight custom rule for one client.
	ruleReq := models.SetRateLimitRuleRequest{
		RateLimitRule: models.RateLimitRule{
			Type:          models.RuleTypeIP,
			Identifier:    "203.0.113.7",
			Limit:         2,
			WindowSeconds: 60,
		},
	}
	resp := postJSON(t, server.URL+"/api/v1/ratelimit/rules", ruleReq)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// Step 2: The rule is retrievable.
	resp, err := http.Get(server.URL + "/api/v1/ratelimit/rules/ip/203.0.113.7")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fetched models.RateLimitRule
	decodeBody(t, resp, &fetched)
	assert.Equal(t, 2, fetched.Limit)

	// Step 3: Two clean admission checks pass, the third hits the limit.
	admReq := models.AdmissionCheckRequest{
		RuleType:   models.RuleTypeIP,
		Identifier: "203.0.113.7",
		Request: models.AnalyzeRequest{
			Method: "GET",
			Path:   "/api/orders",
		},
	}
	for i := 0; i < 2; i++ {
		resp = postJSON(t, server.URL+"/api/v1/admission/check", admReq)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var decision models.AdmissionDecision
		decodeBody(t, resp, &decision)
		assert.True(t, decision.Allowed, "check %d", i+1)
	}

	resp = postJSON(t, server.URL+"/api/v1/admission/check", admReq)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	var decision models.AdmissionDecision
	decodeBody(t, resp, &decision)
	assert.False(t, decision.Allowed)
	assert.False(t, decision.RateLimit.Allowed)
	assert.Equal(t, models.WAFActionAllow, decision.WAF.Action)

	// Step 4: Another client is unaffected by the custom rule.
	admReq.Identifier = "203.0.113.99"
	resp = postJSON(t, server.URL+"/api/v1/admission/check", admReq)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &decision)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 100, decision.RateLimit.Limit)

	// Step 5: Deleting the rule restores the default for the first client.
	req, err := http.NewRequest(http.MethodDelete, server.URL+"/api/v1/ratelimit/rules/ip/203.0.113.7", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	admReq.Identifier = "203.0.113.7"
	resp = postJSON(t, server.URL+"/api/v1/admission/check", admReq)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &decision)
	assert.Equal(t, 100, decision.RateLimit.Limit)
}

func TestIntegration_WAFLifecycle(t *testing.T) {
	cfg := models.NewDefaultConfig()
	server, _ := newTestServer(t, cfg)

	// Built-in rules block a hostile payload out of the box.
	analyzeReq := models.AnalyzeRequest{
		Method: "GET",
		Path:   "/api/products",
		QueryParams: map[string]string{
			"id": "1; DROP TABLE users",
		},
	}
	resp := postJSON(t, server.URL+"/api/v1/waf/analyze", analyzeReq)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result models.WAFResult
	decodeBody(t, resp, &result)
	assert.Equal(t, models.WAFActionBlock, result.Action)

	// A custom rule extends coverage to an application-specific marker.
	customRule := models.WAFRule{
		ID:       "custom-integration",
		Name:     "Integration marker",
		RuleType: models.WAFRuleTypeAnomalyDetection,
		Pattern:  "integration-attack-token",
		Action:   models.WAFActionBlock,
		Enabled:  true,
		Severity: 7,
	}
	resp = postJSON(t, server.URL+"/api/v1/waf/rules", customRule)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, server.URL+"/api/v1/waf/analyze", models.AnalyzeRequest{
		Method: "POST",
		Path:   "/api/data",
		Body:   "integration-attack-token",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &result)
	assert.Equal(t, models.WAFActionBlock, result.Action)

	// Statistics reflect the addition.
	resp, err := http.Get(server.URL + "/api/v1/waf/statistics")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats models.WAFStatistics
	decodeBody(t, resp, &stats)
	assert.Equal(t, 1, stats.CustomRules)

	// Removing the rule restores the previous behavior.
	req, err := http.NewRequest(http.MethodDelete, server.URL+"/api/v1/waf/rules/custom-integration", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, server.URL+"/api/v1/waf/analyze", models.AnalyzeRequest{
		Method: "POST",
		Path:   "/api/data",
		Body:   "integration-attack-token",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &result)
	assert.Equal(t, models.WAFActionAllow, result.Action)
}

func TestIntegration_RateLimitHeaders(t *testing.T) {
	cfg := models.NewDefaultConfig()
	server, _ := newTestServer(t, cfg)

	url := fmt.Sprintf("%s/api/v1/ratelimit/check?rule_type=ip&identifier=198.51.100.1", server.URL)

	resp := postJSON(t, url, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "100", resp.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "99", resp.Header.Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Reset"))
	resp.Body.Close()

	resp = postJSON(t, url, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "98", resp.Header.Get("X-RateLimit-Remaining"))
	resp.Body.Close()
}

func TestIntegration_HealthAndStats(t *testing.T) {
	cfg := models.NewDefaultConfig()
	server, _ := newTestServer(t, cfg)

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health models.HealthCheckResponse
	decodeBody(t, resp, &health)
	assert.Equal(t, models.StatusHealthy, health.Status)

	// Drive some traffic, then confirm the stats endpoint sees it.
	for i := 0; i < 3; i++ {
		url := fmt.Sprintf("%s/api/v1/ratelimit/check?rule_type=ip&identifier=198.51.100.%d", server.URL, i)
		resp = postJSON(t, url, nil)
		resp.Body.Close()
	}

	resp, err = http.Get(server.URL + "/api/v1/ratelimit/stats")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats models.RateLimitStats
	decodeBody(t, resp, &stats)
	assert.Equal(t, 3, stats.ActiveLimitsByType[models.RuleTypeIP])
}
