package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"gatekeeper/internal/admission"
	"gatekeeper/internal/models"
	"gatekeeper/internal/store"
	"gatekeeper/internal/waf"

	"github.com/gorilla/mux"
)

// AnalyzeRequest handles firewall analysis requests
// POST /api/v1/waf/analyze
func (h *Handlers) AnalyzeRequest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var req models.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}

	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, http.StatusUnprocessableEntity, models.ErrorCodeValidation, err.Error())
		return
	}

	result := h.controller.AnalyzeRequest(r.Context(), &req)
	h.writeJSONResponse(w, http.StatusOK, result)
}

// CreateWAFRule handles firewall rule creation requests
// POST /api/v1/waf/rules
func (h *Handlers) CreateWAFRule(w http.ResponseWriter, r *http.Request) {
	var rule models.WAFRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}

	if err := rule.Validate(); err != nil {
		h.writeErrorResponse(w, http.StatusUnprocessableEntity, models.ErrorCodeValidation, err.Error())
		return
	}

	ctx, cancel := h.storeContext(r)
	defer cancel()

	if err := h.wafEngine.AddRule(ctx, &rule); err != nil {
		if errors.Is(err, waf.ErrBuiltinRule) {
			h.writeServiceError(w, admission.NewConflictError(err.Error()))
			return
		}
		h.writeServiceError(w, admission.NewStoreUnavailableError(err))
		return
	}

	h.writeJSONResponse(w, http.StatusCreated, &rule)
}

// ListWAFRules handles firewall rule listing requests
// GET /api/v1/waf/rules
func (h *Handlers) ListWAFRules(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, h.wafEngine.Rules())
}

// DeleteWAFRule handles firewall rule deletion requests
// DELETE /api/v1/waf/rules/{id}
func (h *Handlers) DeleteWAFRule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	ctx, cancel := h.storeContext(r)
	defer cancel()

	if err := h.wafEngine.RemoveRule(ctx, id); err != nil {
		switch {
		case errors.Is(err, waf.ErrBuiltinRule):
			h.writeServiceError(w, admission.NewConflictError(err.Error()))
		case store.IsNotFound(err):
			h.writeServiceError(w, admission.NewRuleNotFoundError(id))
		default:
			h.writeServiceError(w, admission.NewStoreUnavailableError(err))
		}
		return
	}

	h.writeJSONResponse(w, http.StatusOK, &models.ConfirmationResponse{
		Message: "firewall rule deleted",
		ID:      id,
	})
}

// GetWAFStatistics handles firewall statistics requests
// GET /api/v1/waf/statistics
func (h *Handlers) GetWAFStatistics(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, h.wafEngine.Statistics())
}

// GetWAFRuleTypes handles rule type metadata requests
// GET /api/v1/waf/rule-types
func (h *Handlers) GetWAFRuleTypes(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, waf.RuleTypeInfos())
}
