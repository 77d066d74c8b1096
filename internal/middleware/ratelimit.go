package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jojo-app/realtime-server-go/internal/audit"
	"github.com/jojo-app/realtime-server-go/internal/config"
	apperrors "github.com/jojo-app/realtime-server-go/internal/errors"
	"github.com/jojo-app/realtime-server-go/internal/httputil"
)

const (
	maxEntries      = 10000
	cleanupInterval = time.Minute
	entryTTL        = 5 * time.Minute
	windowDuration  = time.Minute
)

// Limiter decides whether one more request for key fits in a per-minute
// budget.
type Limiter interface {
	Check(ctx context.Context, key string, limit int) (allowed bool, remaining int, resetAt int64)
}

type limiterEntry struct {
	limiter    *rate.Limiter
	limit      int
	lastAccess time.Time
}

// MemoryLimiter is a per-process token bucket limiter. Each key refills at
// limit tokens per minute with a burst of limit.
type MemoryLimiter struct {
	mu          sync.Mutex
	store       map[string]*limiterEntry
	lastCleanup time.Time
	now         func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		store:       make(map[string]*limiterEntry),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

func (l *MemoryLimiter) cleanup(now time.Time) {
	if now.Sub(l.lastCleanup) < cleanupInterval {
		return
	}
	l.lastCleanup = now

	for key, entry := range l.store {
		if now.Sub(entry.lastAccess) > entryTTL {
			delete(l.store, key)
		}
	}

	if len(l.store) > maxEntries {
		drop := len(l.store) / 5
		for key := range l.store {
			if drop == 0 {
				break
			}
			delete(l.store, key)
			drop--
		}
	}
}

func (l *MemoryLimiter) Check(_ context.Context, key string, limit int) (bool, int, int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit <= 0 {
		limit = config.DefaultRateLimitPerMin
	}
	now := l.now()
	l.cleanup(now)

	entry, ok := l.store[key]
	if !ok || entry.limit != limit {
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Every(windowDuration/time.Duration(limit)), limit),
			limit:   limit,
		}
		l.store[key] = entry
	}
	entry.lastAccess = now

	resetAt := now.Add(windowDuration).Unix()
	if !entry.limiter.AllowN(now, 1) {
		return false, 0, resetAt
	}
	remaining := int(entry.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return true, remaining, resetAt
}

// RateLimitMiddleware applies a Limiter per authenticated identity, or per
// client address when the request carries none.
type RateLimitMiddleware struct {
	limiter Limiter
	limit   int
	scope   string
}

func NewRateLimitMiddleware(limiter Limiter, limit int, scope string) *RateLimitMiddleware {
	if limit <= 0 {
		limit = config.DefaultRateLimitPerMin
	}
	return &RateLimitMiddleware{limiter: limiter, limit: limit, scope: scope}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "ip:" + audit.ClientIP(r)
		identityID := ""
		if id, ok := GetIdentity(r.Context()); ok {
			identityID = id.ID
			key = "id:" + id.ID
		}

		allowed, remaining, resetAt := m.limiter.Check(r.Context(), m.scope+":"+key, m.limit)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))

		if !allowed {
			log.Warn().Str("identityId", identityID).Str("scope", m.scope).Msg("rate limit exceeded")
			audit.LogFromRequest(r, audit.Event{
				Type:       audit.EventRateLimitExceed,
				IdentityID: identityID,
				Details:    map[string]interface{}{"scope": m.scope},
			})
			w.Header().Set("Retry-After", "60")
			httputil.WriteError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}
