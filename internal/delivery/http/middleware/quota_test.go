package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQuotaHandler(rdb *redis.Client, limit int) http.HandlerFunc {
	rule := QuotaRule{Limit: limit, Window: 24 * time.Hour, KeyFn: NotifyQuotaKey}
	return Quota(rdb, rule, testLogger)(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func notifyRequest(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/events/e1/notify", nil)
	if userID == "" {
		return req
	}
	return withPrincipal(req, userID)
}

func TestQuota_LimitsPerOrganizer(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	handler := newQuotaHandler(rdb, 2)

	rr := httptest.NewRecorder()
	handler(rr, notifyRequest("org-1"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "1/2", rr.Header().Get("X-Quota-Used"))

	rr = httptest.NewRecorder()
	handler(rr, notifyRequest("org-1"))
	assert.Equal(t, "2/2", rr.Header().Get("X-Quota-Used"))

	rr = httptest.NewRecorder()
	handler(rr, notifyRequest("org-1"))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	rr = httptest.NewRecorder()
	handler(rr, notifyRequest("org-2"))
	assert.Equal(t, http.StatusOK, rr.Code)

	ttl := mr.TTL("quota:notify:org-1")
	require.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 24*time.Hour)

	mr.FastForward(25 * time.Hour)
	rr = httptest.NewRecorder()
	handler(rr, notifyRequest("org-1"))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestQuota_FailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	handler := newQuotaHandler(rdb, 1)
	mr.Close()

	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		handler(rr, notifyRequest("org-1"))
		assert.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestQuota_NoRedisOrKeySkips(t *testing.T) {
	rr := httptest.NewRecorder()
	newQuotaHandler(nil, 0)(rr, notifyRequest("org-1"))
	assert.Equal(t, http.StatusOK, rr.Code)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rr = httptest.NewRecorder()
	newQuotaHandler(rdb, 0)(rr, notifyRequest(""))
	assert.Equal(t, http.StatusOK, rr.Code)
}
