package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"gatekeeper/internal/models"
)

// AdmissionCheck handles composite admission requests, one limiter check plus
// one firewall analysis over the same request descriptor.
// POST /api/v1/admission/check
func (h *Handlers) AdmissionCheck(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var req models.AdmissionCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}

	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, http.StatusUnprocessableEntity, models.ErrorCodeValidation, err.Error())
		return
	}

	decision, err := h.controller.Admit(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if decision.RateLimit != nil {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.RateLimit.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.RateLimit.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.RateLimit.ResetTime, 10))
		if !decision.RateLimit.Allowed {
			w.Header().Set("Retry-After", strconv.FormatInt(decision.RateLimit.RetryAfter, 10))
		}
	}

	h.writeJSONResponse(w, http.StatusOK, decision)
}
