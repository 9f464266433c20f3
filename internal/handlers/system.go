package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/teahouse/api/internal/platform/httpx"
	"github.com/teahouse/api/internal/services"
)

const maxCounterRequestBody = 4 * 1024

// SystemHandlers exposes service-to-service utility endpoints. The router
// mounts them under /internal behind the OIDC middleware.
type SystemHandlers struct {
	system services.SystemService
}

// NewSystemHandlers constructs system handlers.
func NewSystemHandlers(system services.SystemService) *SystemHandlers {
	return &SystemHandlers{system: system}
}

// Routes registers the internal endpoints.
func (h *SystemHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/counters/{counterID}/next", h.nextCounterValue)
}

type counterNextRequest struct {
	Step int64 `json:"step"`
}

type counterNextResponse struct {
	CounterID string `json:"counter_id"`
	Value     int64  `json:"value"`
}

func (h *SystemHandlers) nextCounterValue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.system == nil {
		httpx.WriteError(ctx, w, httpx.NewError("system_service_unavailable", "system service unavailable", http.StatusServiceUnavailable))
		return
	}

	counterID := strings.TrimSpace(chi.URLParam(r, "counterID"))
	if counterID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "counter id is required", http.StatusBadRequest))
		return
	}

	req := counterNextRequest{Step: 1}
	body, err := readLimitedBody(r, maxCounterRequestBody)
	switch {
	case err == nil:
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	case errors.Is(err, errEmptyBody):
		// Empty body advances by one.
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	if req.Step <= 0 {
		req.Step = 1
	}

	value, err := h.system.NextCounterValue(ctx, services.CounterCommand{
		CounterID: counterID,
		Step:      req.Step,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("counter_error", "failed to advance counter", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, counterNextResponse{CounterID: counterID, Value: value})
}
