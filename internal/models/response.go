// Package models - API response types and error handling.
// All endpoints share the same JSON envelope conventions: optional fields use
// omitempty, errors carry machine-readable codes, timestamps are RFC3339.
package models

import (
	"time"
)

// Error codes returned in ErrorResponse.Code.
const (
	ErrorCodeNotFound           = "NOT_FOUND"            // 404: resource doesn't exist
	ErrorCodeRuleNotFound       = "RULE_NOT_FOUND"       // 404: rule doesn't exist
	ErrorCodeBadRequest         = "BAD_REQUEST"          // 400: invalid request format
	ErrorCodeInvalidRequest     = "INVALID_REQUEST"      // 400: invalid request data
	ErrorCodeInvalidPattern     = "INVALID_PATTERN"      // 400: rule pattern does not compile
	ErrorCodeValidation         = "VALIDATION_ERROR"     // 422: input validation failed
	ErrorCodeConflict           = "CONFLICT"             // 409: rule id collision
	ErrorCodeInternalError      = "INTERNAL_ERROR"       // 500: server-side error
	ErrorCodeStoreUnavailable   = "STORE_UNAVAILABLE"    // 503: shared store unreachable
	ErrorCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"  // 429: limiter denied the request
	ErrorCodeServiceUnavailable = "SERVICE_UNAVAILABLE"  // 503: service temporarily down
)

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code"`
	Details   string    `json:"details,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewErrorResponse creates an error response with the current timestamp.
func NewErrorResponse(message, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     message,
		Code:      code,
		Timestamp: time.Now().UTC(),
	}
}

// ConfirmationResponse acknowledges a successful mutation.
type ConfirmationResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// AdmissionDecision is the composite result of running both engines for one
// request. Allowed is the conventional combination (deny if either engine
// denies); callers that want different policy can combine the sub-results
// themselves.
type AdmissionDecision struct {
	Allowed          bool             `json:"allowed"`
	RateLimit        *RateLimitStatus `json:"rate_limit"`
	WAF              *WAFResult       `json:"waf"`
	ProcessingTimeMs float64          `json:"processing_time_ms"`
}

// RateLimitStats reports how many identifiers currently hold active counters,
// grouped by rule type.
type RateLimitStats struct {
	ActiveLimitsByType map[string]int `json:"active_limits_by_type"`
	TotalActiveLimits  int            `json:"total_active_limits"`
}

// Health status constants.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthCheckResponse reports overall service health and per-component detail.
type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// ComponentHealth is one component's contribution to the health report.
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewHealthCheckResponse creates a health response with the current timestamp.
func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]ComponentHealth),
	}
}

// AddComponent records one component's health.
func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{Status: status, Message: message}
	if status == StatusUnhealthy {
		h.Status = StatusUnhealthy
	} else if status == StatusDegraded && h.Status == StatusHealthy {
		h.Status = StatusDegraded
	}
}
