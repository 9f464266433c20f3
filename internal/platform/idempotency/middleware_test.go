package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teahouse/api/internal/platform/auth"
)

var testClock = func() time.Time {
	return time.Date(2025, time.March, 10, 9, 30, 0, 0, time.UTC)
}

func newGuardedHandler(store Store, hits *int32) http.Handler {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"ord_123"}`))
	})
	return Middleware(store, WithClock(testClock))(handler)
}

func postOrder(handler http.Handler, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	ctx := auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	code, _ := payload["error"].(string)
	return code
}

func TestMiddlewareRequiresKeyOnPost(t *testing.T) {
	var hits int32
	handler := newGuardedHandler(NewMemoryStore(), &hits)

	rec := postOrder(handler, "", `{"items":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != "idempotency_key_required" {
		t.Fatalf("unexpected error code %q", code)
	}
	if hits != 0 {
		t.Fatalf("handler must not run without a key, got %d hits", hits)
	}
}

func TestMiddlewareIgnoresReads(t *testing.T) {
	var hits int32
	handler := newGuardedHandler(NewMemoryStore(), &hits)

	req := httptest.NewRequest(http.MethodGet, "/v1/orders/ord_123", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
	if hits != 1 {
		t.Fatalf("expected 1 handler hit, got %d", hits)
	}
}

func TestMiddlewareReplaysCompletedResponse(t *testing.T) {
	var hits int32
	handler := newGuardedHandler(NewMemoryStore(), &hits)

	first := postOrder(handler, "key-1", `{"items":[{"product_id":"p1"}]}`)
	if first.Code != http.StatusCreated {
		t.Fatalf("first request: expected 201, got %d", first.Code)
	}
	if first.Header().Get("X-Idempotent-Replay") != "" {
		t.Fatal("first request must not carry the replay header")
	}

	second := postOrder(handler, "key-1", `{"items":[{"product_id":"p1"}]}`)
	if second.Code != http.StatusCreated {
		t.Fatalf("replay: expected 201, got %d", second.Code)
	}
	if second.Header().Get("X-Idempotent-Replay") != "true" {
		t.Fatal("replay must carry X-Idempotent-Replay: true")
	}
	if got, want := second.Body.String(), first.Body.String(); got != want {
		t.Fatalf("replay body %q differs from original %q", got, want)
	}
	if hits != 1 {
		t.Fatalf("handler must run once, got %d hits", hits)
	}
}

func TestMiddlewareRejectsKeyReuseForDifferentBody(t *testing.T) {
	var hits int32
	handler := newGuardedHandler(NewMemoryStore(), &hits)

	if rec := postOrder(handler, "key-1", `{"items":[{"product_id":"p1"}]}`); rec.Code != http.StatusCreated {
		t.Fatalf("seed request: expected 201, got %d", rec.Code)
	}

	rec := postOrder(handler, "key-1", `{"items":[{"product_id":"p2"}]}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != "idempotency_key_conflict" {
		t.Fatalf("unexpected error code %q", code)
	}
	if hits != 1 {
		t.Fatalf("handler must not run for the conflicting reuse, got %d hits", hits)
	}
}

func TestMiddlewareReportsInFlightKey(t *testing.T) {
	store := NewMemoryStore()
	var hits int32
	handler := newGuardedHandler(store, &hits)

	// Claim the key as another request would, without finishing it. The
	// scoped key and fingerprint must match what the middleware derives.
	body := `{"items":[]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	fingerprint := fingerprintRequest(req, []byte(body), "user-1")
	if _, err := store.Begin(context.Background(), "key-1|user-1", fingerprint, testClock(), time.Hour); err != nil {
		t.Fatalf("claim key: %v", err)
	}

	rec := postOrder(handler, "key-1", body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != "idempotency_in_progress" {
		t.Fatalf("unexpected error code %q", code)
	}
	if hits != 0 {
		t.Fatalf("handler must not run while the key is in flight, got %d hits", hits)
	}
}

func TestMiddlewareScopesKeysPerCaller(t *testing.T) {
	var hits int32
	handler := newGuardedHandler(NewMemoryStore(), &hits)

	if rec := postOrder(handler, "key-1", `{"items":[]}`); rec.Code != http.StatusCreated {
		t.Fatalf("first caller: expected 201, got %d", rec.Code)
	}

	// A different caller reusing the same key is a fresh request, not a
	// replay and not a conflict.
	req := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(`{"items":[]}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "key-1")
	ctx := auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-2"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(ctx))

	if rec.Code != http.StatusCreated {
		t.Fatalf("second caller: expected 201, got %d", rec.Code)
	}
	if rec.Header().Get("X-Idempotent-Replay") != "" {
		t.Fatal("second caller must not receive a replay")
	}
	if hits != 2 {
		t.Fatalf("expected 2 handler hits, got %d", hits)
	}
}

type failingStore struct {
	beginErr    error
	completeErr error
	aborted     int32
}

func (s *failingStore) Begin(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Replay, error) {
	if s.beginErr != nil {
		return Replay{}, s.beginErr
	}
	return Replay{Record: Record{Key: key, Fingerprint: fingerprint, CreatedAt: now, ExpiresAt: now.Add(ttl)}}, nil
}

func (s *failingStore) Complete(context.Context, string, string, Response, time.Time, time.Duration) error {
	return s.completeErr
}

func (s *failingStore) Abort(context.Context, string, string) error {
	atomic.AddInt32(&s.aborted, 1)
	return nil
}

func (s *failingStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func TestMiddlewareFailsClosedOnStoreError(t *testing.T) {
	var hits int32
	handler := newGuardedHandler(&failingStore{beginErr: errors.New("backend down")}, &hits)

	rec := postOrder(handler, "key-1", `{"items":[]}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != "idempotency_store_error" {
		t.Fatalf("unexpected error code %q", code)
	}
	if hits != 0 {
		t.Fatalf("handler must not run when the claim fails, got %d hits", hits)
	}
}

func TestMiddlewareAbortsWhenPersistenceFails(t *testing.T) {
	store := &failingStore{completeErr: errors.New("write failed")}
	var hits int32
	handler := newGuardedHandler(store, &hits)

	rec := postOrder(handler, "key-1", `{"items":[]}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != "idempotency_store_error" {
		t.Fatalf("unexpected error code %q", code)
	}
	if hits != 1 {
		t.Fatalf("expected the handler to run once, got %d hits", hits)
	}
	if store.aborted != 1 {
		t.Fatalf("expected the claim to be released, got %d aborts", store.aborted)
	}
}

func TestMemoryStoreCleanupExpired(t *testing.T) {
	store := NewMemoryStore()
	now := testClock()

	for _, key := range []string{"a", "b", "c"} {
		if _, err := store.Begin(context.Background(), key, "fp", now, time.Minute); err != nil {
			t.Fatalf("begin %s: %v", key, err)
		}
	}

	removed, err := store.CleanupExpired(context.Background(), now.Add(2*time.Minute), 10)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}

	// A fresh claim after cleanup must succeed again.
	replay, err := store.Begin(context.Background(), "a", "fp", now.Add(2*time.Minute), time.Minute)
	if err != nil {
		t.Fatalf("begin after cleanup: %v", err)
	}
	if replay.Found || replay.InFlight {
		t.Fatalf("expected a fresh claim, got %+v", replay)
	}
}
