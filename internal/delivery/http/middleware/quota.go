package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	h "campusattend/internal/delivery/http/helpers"
)

// QuotaRule caps how many requests a key may make per window.
type QuotaRule struct {
	Limit  int
	Window time.Duration
	// KeyFn picks the counter key; an empty key skips the quota.
	KeyFn func(*http.Request) string
}

// Quota counts requests in Redis with INCR and a window EXPIRE. When Redis
// is unreachable the request is let through.
func Quota(rdb *redis.Client, rule QuotaRule, logger *slog.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		if rdb == nil {
			return next
		}
		return func(w http.ResponseWriter, r *http.Request) {
			key := rule.KeyFn(r)
			if key == "" {
				next(w, r)
				return
			}
			ctx := r.Context()
			n, err := rdb.Incr(ctx, key).Result()
			if err != nil {
				logger.WarnContext(ctx, "quota check skipped", "key", key, "err", err)
				next(w, r)
				return
			}
			if n == 1 {
				_ = rdb.Expire(ctx, key, rule.Window).Err()
			}
			if int(n) > rule.Limit {
				h.WriteJSONError(w, http.StatusTooManyRequests, h.ErrCodeTooManyRequests, "Usage quota exceeded. Please try again later.")
				return
			}
			w.Header().Set("X-Quota-Used", fmt.Sprintf("%d/%d", n, rule.Limit))
			next(w, r)
		}
	}
}

// NotifyQuotaKey keys the notification quota by organizer.
func NotifyQuotaKey(r *http.Request) string {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		return ""
	}
	return "quota:notify:" + userID
}
