package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := CORS([]string{" https://app.campus.edu/ ", ""}, next)

	tests := []struct {
		name       string
		method     string
		origin     string
		preflight  bool
		wantStatus int
		wantAllow  string
	}{
		{"preflight allowed", http.MethodOptions, "https://app.campus.edu", true, http.StatusNoContent, "https://app.campus.edu"},
		{"preflight other origin", http.MethodOptions, "https://evil.example", true, http.StatusNoContent, ""},
		{"plain options reaches handler", http.MethodOptions, "https://app.campus.edu", false, http.StatusOK, "https://app.campus.edu"},
		{"simple allowed", http.MethodGet, "https://app.campus.edu", false, http.StatusOK, "https://app.campus.edu"},
		{"simple other origin", http.MethodGet, "https://evil.example", false, http.StatusOK, ""},
		{"no origin", http.MethodGet, "", false, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/events", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantAllow, rr.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "Origin", rr.Header().Get("Vary"))
			if tt.preflight && tt.wantAllow != "" {
				assert.Contains(t, rr.Header().Get("Access-Control-Allow-Headers"), "Authorization")
				assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "PATCH")
			}
			if tt.wantAllow != "" {
				assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
				assert.Contains(t, rr.Header().Get("Access-Control-Expose-Headers"), "X-Quota-Used")
			}
		})
	}
}

func TestCORS_Wildcard(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	handler := CORS([]string{"*"}, next)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://anything.example")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Credentials"))
}
