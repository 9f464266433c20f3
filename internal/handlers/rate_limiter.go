package handlers

import (
	"strings"
	"sync"
	"time"
)

// throttle caps how often a single customer may place orders.
type throttle interface {
	Allow(key string) bool
}

type userThrottle struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	windows map[string]throttleWindow
}

type throttleWindow struct {
	startedAt time.Time
	used      int
}

func newUserThrottle(limit int, window time.Duration, clock func() time.Time) throttle {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &userThrottle{
		limit:   limit,
		window:  window,
		clock:   clock,
		windows: make(map[string]throttleWindow),
	}
}

func (t *userThrottle) Allow(key string) bool {
	if t == nil {
		return true
	}
	if key = strings.TrimSpace(key); key == "" {
		key = "anonymous"
	}

	now := t.clock()
	t.mu.Lock()
	defer t.mu.Unlock()

	t.dropStaleWindows(now)

	w, ok := t.windows[key]
	if !ok || now.Sub(w.startedAt) >= t.window {
		t.windows[key] = throttleWindow{startedAt: now, used: 1}
		return true
	}
	if w.used >= t.limit {
		return false
	}
	w.used++
	t.windows[key] = w
	return true
}

func (t *userThrottle) dropStaleWindows(now time.Time) {
	for key, w := range t.windows {
		if now.Sub(w.startedAt) >= t.window {
			delete(t.windows, key)
		}
	}
}
