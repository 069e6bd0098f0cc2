package handlers

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jmartinez0/quantity-breaks/internal/platform/auth"
	"github.com/jmartinez0/quantity-breaks/internal/platform/httpx"
)

// RequestLimiter throttles API traffic per caller. Authenticated requests are
// keyed by shop domain so one noisy shop cannot starve the rest; anything that
// reaches a route without a session identity falls back to a per-IP budget.
type RequestLimiter struct {
	authenticated rateLimiter
	anonymous     rateLimiter
}

// NewRequestLimiter builds a limiter with per-minute budgets. A non-positive
// budget disables the corresponding bucket.
func NewRequestLimiter(authenticatedPerMinute, defaultPerMinute int, clock func() time.Time) *RequestLimiter {
	return &RequestLimiter{
		authenticated: newSimpleRateLimiter(authenticatedPerMinute, time.Minute, clock),
		anonymous:     newSimpleRateLimiter(defaultPerMinute, time.Minute, clock),
	}
}

// Middleware rejects over-budget requests with a 429 before they reach the handler.
func (l *RequestLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l == nil || l.allow(r) {
				next.ServeHTTP(w, r)
				return
			}
			httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "request rate limit exceeded", http.StatusTooManyRequests))
		})
	}
}

func (l *RequestLimiter) allow(r *http.Request) bool {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity != nil && identity.ShopDomain != "" {
		if l.authenticated == nil {
			return true
		}
		return l.authenticated.Allow(identity.ShopDomain)
	}
	if l.anonymous == nil {
		return true
	}
	return l.anonymous.Allow(clientKey(r))
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type rateLimiter interface {
	Allow(key string) bool
}

type simpleRateLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time
	mu     sync.Mutex
	store  map[string]rateEntry
}

type rateEntry struct {
	count int
	reset time.Time
}

func newSimpleRateLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &simpleRateLimiter{
		limit:  limit,
		window: window,
		clock:  clock,
		store:  make(map[string]rateEntry),
	}
}

func (l *simpleRateLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.store[key]
	if !ok || now.After(entry.reset) {
		l.store[key] = rateEntry{count: 1, reset: now.Add(l.window)}
		l.pruneExpiredLocked(now)
		return true
	}

	if entry.count >= l.limit {
		return false
	}
	entry.count++
	l.store[key] = entry
	return true
}

func (l *simpleRateLimiter) pruneExpiredLocked(now time.Time) {
	if len(l.store) == 0 {
		return
	}
	for key, entry := range l.store {
		if now.After(entry.reset) {
			delete(l.store, key)
		}
	}
}
