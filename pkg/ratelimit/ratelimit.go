// Package ratelimit implements a process-local fixed-window request
// limiter keyed by (endpoint, caller). Quotas are per worker; in a
// multi-process deployment each worker carries its own buckets, which the
// deployment tolerates.
package ratelimit

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// Default quota applied when a route does not override it
const (
	DefaultWindow = 60 * time.Second
	DefaultMax    = 60
)

type bucket struct {
	count   int
	resetAt time.Time
}

// Limiter tracks fixed-window buckets per key
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// New creates a limiter
func New() *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
	go l.cleanupLoop()
	return l
}

// NewWithClock creates a limiter with an injected clock, for tests
func NewWithClock(now func() time.Time) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		now:     now,
	}
}

// Result reports the outcome of an Allow call
type Result struct {
	Allowed bool
	// RetryAfterSeconds is the ceiling of the time until the window
	// resets. Only meaningful when Allowed is false.
	RetryAfterSeconds int
}

// Allow consumes one request from the bucket identified by (endpoint, key).
// A new window starts when the previous one has elapsed; the first request
// of a window always passes (given max >= 1).
func (l *Limiter) Allow(endpoint, key string, max int, window time.Duration) Result {
	now := l.now()
	id := endpoint + "|" + key

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[id]
	if !ok || !now.Before(b.resetAt) {
		l.buckets[id] = &bucket{count: 1, resetAt: now.Add(window)}
		return Result{Allowed: true}
	}

	if b.count >= max {
		retry := int((b.resetAt.Sub(now) + time.Second - 1) / time.Second)
		if retry < 1 {
			retry = 1
		}
		return Result{Allowed: false, RetryAfterSeconds: retry}
	}

	b.count++
	return Result{Allowed: true}
}

func (l *Limiter) cleanupLoop() {
	for {
		time.Sleep(10 * time.Minute)
		now := l.now()
		l.mu.Lock()
		for id, b := range l.buckets {
			if !now.Before(b.resetAt) {
				delete(l.buckets, id)
			}
		}
		l.mu.Unlock()
	}
}

// ClientIP derives the caller key from proxy headers, in order of trust:
// X-Forwarded-For first element, CF-Connecting-IP, X-Real-IP, X-Client-IP.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	for _, h := range []string{"CF-Connecting-IP", "X-Real-IP", "X-Client-IP"} {
		if v := r.Header.Get(h); v != "" {
			return v
		}
	}
	return "unknown"
}

// AuthenticatedKey combines the client IP with the tail of the bearer token
// so that rotating tokens does not evict other callers behind the same
// proxy. Only the last 16 characters participate; the full token never
// lands in the bucket map.
func AuthenticatedKey(r *http.Request) string {
	key := ClientIP(r)
	authHeader := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
		token = strings.TrimSpace(token)
		if len(token) > 16 {
			token = token[len(token)-16:]
		}
		if token != "" {
			key += ":" + token
		}
	}
	return key
}
