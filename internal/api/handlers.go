package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"gatekeeper/internal/admission"
	"gatekeeper/internal/models"
	"gatekeeper/internal/ratelimit"
	"gatekeeper/internal/store"
	"gatekeeper/internal/version"
	"gatekeeper/internal/waf"

	"github.com/gorilla/mux"
)

// Handlers contains HTTP handlers for the gatekeeper API
type Handlers struct {
	controller   *admission.Controller
	wafEngine    *waf.Engine
	resolver     *ratelimit.RuleResolver
	store        store.Store
	version      version.Info
	storeTimeout time.Duration
	maxBodyBytes int64
}

// NewHandlers creates a new handlers instance
func NewHandlers(controller *admission.Controller, wafEngine *waf.Engine, resolver *ratelimit.RuleResolver, st store.Store, cfg *models.Config, ver version.Info) *Handlers {
	return &Handlers{
		controller:   controller,
		wafEngine:    wafEngine,
		resolver:     resolver,
		store:        st,
		version:      ver,
		storeTimeout: cfg.Store.Timeout,
		maxBodyBytes: cfg.WAF.MaxBodyBytes,
	}
}

// CheckRateLimit handles rate limit check requests
// POST /api/v1/ratelimit/check?rule_type=&identifier=
// An optional JSON body supplies a one-shot rule override for this check.
func (h *Handlers) CheckRateLimit(w http.ResponseWriter, r *http.Request) {
	ruleType := r.URL.Query().Get("rule_type")
	identifier := r.URL.Query().Get("identifier")

	if !models.IsValidRuleType(ruleType) {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest,
			fmt.Sprintf("invalid rule type: %s", ruleType))
		return
	}
	if identifier == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, "identifier is required")
		return
	}

	override, err := h.decodeOverride(r, ruleType, identifier)
	if err != nil {
		h.writeErrorResponse(w, http.StatusUnprocessableEntity, models.ErrorCodeValidation, err.Error())
		return
	}

	status, err := h.controller.CheckRateLimit(r.Context(), ruleType, identifier, override)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(status.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(status.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(status.ResetTime, 10))

	if !status.Allowed {
		w.Header().Set("Retry-After", strconv.FormatInt(status.RetryAfter, 10))
		h.writeJSONResponse(w, http.StatusTooManyRequests, status)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, status)
}

// decodeOverride parses the optional rule override from the request body.
// An empty body means no override. Type and identifier default to the query
// parameters when the body omits them.
func (h *Handlers) decodeOverride(r *http.Request, ruleType, identifier string) (*models.RateLimitRule, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil || len(body) == 0 {
		return nil, nil
	}

	var override models.RateLimitRule
	if err := json.Unmarshal(body, &override); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	if override.Type == "" {
		override.Type = ruleType
	}
	if override.Identifier == "" {
		override.Identifier = identifier
	}
	if err := override.Validate(); err != nil {
		return nil, err
	}
	return &override, nil
}

// SetRateLimitRule handles rule creation requests
// POST /api/v1/ratelimit/rules
func (h *Handlers) SetRateLimitRule(w http.ResponseWriter, r *http.Request) {
	var req models.SetRateLimitRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}

	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, http.StatusUnprocessableEntity, models.ErrorCodeValidation, err.Error())
		return
	}

	ctx, cancel := h.storeContext(r)
	defer cancel()

	ttl := time.Duration(req.TTLSeconds) * time.Second
	if err := h.store.SetRateLimitRule(ctx, &req.RateLimitRule, ttl); err != nil {
		h.writeServiceError(w, admission.NewStoreUnavailableError(err))
		return
	}

	h.writeJSONResponse(w, http.StatusCreated, &req.RateLimitRule)
}

// GetRateLimitRule handles rule lookup requests
// GET /api/v1/ratelimit/rules/{rule_type}/{identifier}
func (h *Handlers) GetRateLimitRule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ruleType := vars["rule_type"]
	identifier := vars["identifier"]

	if !models.IsValidRuleType(ruleType) {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest,
			fmt.Sprintf("invalid rule type: %s", ruleType))
		return
	}

	ctx, cancel := h.storeContext(r)
	defer cancel()

	rule, err := h.store.GetRateLimitRule(ctx, ruleType, identifier)
	if err != nil {
		if store.IsNotFound(err) {
			// The wildcard identifier names the in-memory default for the
			// type, which exists even when nothing is persisted.
			if identifier == models.WildcardIdentifier {
				if def, ok := h.resolver.Default(ruleType); ok {
					h.writeJSONResponse(w, http.StatusOK, &def)
					return
				}
			}
			h.writeServiceError(w, admission.NewRuleNotFoundError(ruleType+"/"+identifier))
			return
		}
		h.writeServiceError(w, admission.NewStoreUnavailableError(err))
		return
	}

	h.writeJSONResponse(w, http.StatusOK, rule)
}

// DeleteRateLimitRule handles rule deletion requests
// DELETE /api/v1/ratelimit/rules/{rule_type}/{identifier}
func (h *Handlers) DeleteRateLimitRule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ruleType := vars["rule_type"]
	identifier := vars["identifier"]

	if !models.IsValidRuleType(ruleType) {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest,
			fmt.Sprintf("invalid rule type: %s", ruleType))
		return
	}

	ctx, cancel := h.storeContext(r)
	defer cancel()

	if err := h.store.DeleteRateLimitRule(ctx, ruleType, identifier); err != nil {
		if store.IsNotFound(err) {
			h.writeServiceError(w, admission.NewRuleNotFoundError(ruleType+"/"+identifier))
			return
		}
		h.writeServiceError(w, admission.NewStoreUnavailableError(err))
		return
	}

	h.writeJSONResponse(w, http.StatusOK, &models.ConfirmationResponse{
		Message: "rate limit rule deleted",
		ID:      ruleType + ":" + identifier,
	})
}

// GetRateLimitStats handles statistics requests
// GET /api/v1/ratelimit/stats
func (h *Handlers) GetRateLimitStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.storeContext(r)
	defer cancel()

	byType, err := h.store.ActiveCounters(ctx)
	if err != nil {
		h.writeServiceError(w, admission.NewStoreUnavailableError(err))
		return
	}

	total := 0
	for _, n := range byType {
		total += n
	}

	h.writeJSONResponse(w, http.StatusOK, &models.RateLimitStats{
		ActiveLimitsByType: byType,
		TotalActiveLimits:  total,
	})
}

// HealthCheck handles health check requests
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.version.Version

	ctx, cancel := h.storeContext(r)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		response.AddComponent("store", models.StatusUnhealthy, err.Error())
	} else {
		response.AddComponent("store", models.StatusHealthy, "Store is operational")
	}

	stats := h.wafEngine.Statistics()
	response.AddComponent("waf", models.StatusHealthy,
		fmt.Sprintf("%d rules active", stats.EnabledRules))
	response.AddComponent("api", models.StatusHealthy, "API is operational")

	statusCode := http.StatusOK
	if response.Status == models.StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	h.writeJSONResponse(w, statusCode, response)
}

// storeContext bounds a handler's store round-trips with the configured
// store timeout.
func (h *Handlers) storeContext(r *http.Request) (ctx context.Context, cancel context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.storeTimeout)
}

// writeServiceError maps an admission layer error to an HTTP response.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	var svcErr *admission.ServiceError
	if errors.As(err, &svcErr) {
		h.writeErrorResponse(w, svcErr.StatusCode, svcErr.Code, svcErr.Error())
		return
	}
	h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, err.Error())
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written; nothing more we can send.
		slog.Error("Error encoding JSON response", "error", err)
	}
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	errorResp := models.NewErrorResponse(message, errorCode)
	h.writeJSONResponse(w, statusCode, errorResp)
}
