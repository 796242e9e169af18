package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

type callerWindow struct {
	count       int
	windowStart time.Time
}

// RateLimiter applies a fixed per-caller window to the session mutation
// endpoints. It keys on the authenticated user id, so one user cannot
// burn the budget of everyone behind the same NAT; requests that carry
// no user fall back to the remote address.
type RateLimiter struct {
	mu      sync.Mutex
	callers map[string]*callerWindow
	limit   int
	window  time.Duration
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		callers: make(map[string]*callerWindow),
		limit:   limit,
		window:  window,
	}

	// Cleanup goroutine
	go func() {
		for {
			time.Sleep(window)
			rl.mu.Lock()
			for key, cw := range rl.callers {
				if time.Since(cw.windowStart) > window {
					delete(rl.callers, key)
				}
			}
			rl.mu.Unlock()
		}
	}()

	return rl
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(callerKey(r)) {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many session requests. Please try again later.", r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(key string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	cw, ok := rl.callers[key]
	if !ok || now.Sub(cw.windowStart) > rl.window {
		rl.callers[key] = &callerWindow{count: 1, windowStart: now}
		return true
	}

	cw.count++
	return cw.count <= rl.limit
}

func callerKey(r *http.Request) string {
	if userID := GetUserID(r.Context()); userID != uuid.Nil {
		return "user:" + userID.String()
	}
	return "addr:" + r.RemoteAddr
}
