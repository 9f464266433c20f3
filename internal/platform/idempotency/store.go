package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long a stored order-creation response stays replayable.
const DefaultTTL = 24 * time.Hour

// ErrFingerprintMismatch is returned when a key is reused with a different
// request body or target.
var ErrFingerprintMismatch = errors.New("idempotency: key reused for a different request")

// Record is the stored outcome of a guarded request.
type Record struct {
	Key             string
	Fingerprint     string
	Completed       bool
	ResponseStatus  int
	ResponseHeaders http.Header
	ResponseBody    []byte
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// Response is the handler output to persist for replay.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Replay reports what the store already knows about a key.
type Replay struct {
	// Found means a completed response exists and must be replayed.
	Found bool
	// InFlight means another request holds the key and has not finished.
	InFlight bool
	Record   Record
}

// Store persists claims on idempotency keys and their responses.
type Store interface {
	// Begin claims the key. When neither Found nor InFlight is set the
	// caller owns the key and must Complete or Abort it.
	Begin(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Replay, error)
	Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Abort(ctx context.Context, key, fingerprint string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

func recordID(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// storableHeaders drops hop-by-hop and derived headers before persisting.
func storableHeaders(header http.Header) http.Header {
	if len(header) == 0 {
		return nil
	}
	filtered := make(http.Header, len(header))
	for name, values := range header {
		switch strings.ToLower(name) {
		case "content-length", "date", "connection", "keep-alive", "transfer-encoding", "upgrade":
			continue
		}
		filtered[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	if len(filtered) == 0 {
		return nil
	}
	return filtered
}
