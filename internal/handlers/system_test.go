package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/teahouse/api/internal/services"
)

func newSystemRouter(service services.SystemService) *chi.Mux {
	handler := NewSystemHandlers(service)
	router := chi.NewRouter()
	router.Route("/internal", handler.Routes)
	return router
}

func TestSystemHandlersNextCounterValue(t *testing.T) {
	var captured services.CounterCommand
	service := &stubSystemService{
		counterFn: func(ctx context.Context, cmd services.CounterCommand) (int64, error) {
			captured = cmd
			return 42, nil
		},
	}
	router := newSystemRouter(service)

	body := []byte(`{"step":5}`)
	req := httptest.NewRequest(http.MethodPost, "/internal/counters/receipts:store-1/next", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.CounterID != "receipts:store-1" || captured.Step != 5 {
		t.Fatalf("unexpected command: %#v", captured)
	}

	var resp counterNextResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Value != 42 || resp.CounterID != "receipts:store-1" {
		t.Fatalf("unexpected response: %#v", resp)
	}
}

func TestSystemHandlersNextCounterValueDefaultsStep(t *testing.T) {
	var captured services.CounterCommand
	service := &stubSystemService{
		counterFn: func(ctx context.Context, cmd services.CounterCommand) (int64, error) {
			captured = cmd
			return 1, nil
		},
	}
	router := newSystemRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/internal/counters/receipts:store-1/next", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.Step != 1 {
		t.Fatalf("expected step to default to 1, got %d", captured.Step)
	}
}

func TestSystemHandlersNextCounterValueFailure(t *testing.T) {
	service := &stubSystemService{
		counterFn: func(ctx context.Context, cmd services.CounterCommand) (int64, error) {
			return 0, errors.New("firestore unavailable")
		},
	}
	router := newSystemRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/internal/counters/receipts:store-1/next", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
}
