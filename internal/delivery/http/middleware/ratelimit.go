package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	h "campusattend/internal/delivery/http/helpers"
)

// UserRateLimiter keeps one token bucket per authenticated user.
type UserRateLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration

	mu       sync.Mutex
	limiters map[string]*userLimiter
	lastGC   time.Time
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewUserRateLimiter allows rps requests per second per user with the given burst.
func NewUserRateLimiter(rps float64, burst int) *UserRateLimiter {
	return &UserRateLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		idle:     10 * time.Minute,
		limiters: make(map[string]*userLimiter),
	}
}

// Allow reports whether userID may make a request now.
func (l *UserRateLimiter) Allow(userID string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastGC) > l.idle {
		for id, ul := range l.limiters {
			if now.Sub(ul.lastSeen) > l.idle {
				delete(l.limiters, id)
			}
		}
		l.lastGC = now
	}
	ul, ok := l.limiters[userID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[userID] = ul
	}
	ul.lastSeen = now
	return ul.limiter.AllowN(now, 1)
}

// Limit must run after RequireAuth. Requests over the caller's budget get 429.
func (l *UserRateLimiter) Limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserIDFromContext(r.Context())
		if !ok {
			h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "unauthorized")
			return
		}
		if !l.Allow(userID) {
			w.Header().Set("Retry-After", "1")
			h.WriteJSONError(w, http.StatusTooManyRequests, h.ErrCodeTooManyRequests, "Too many check-in attempts. Please slow down.")
			return
		}
		next(w, r)
	}
}
