package middleware

import (
	"net/http"
	"strings"
)

const (
	corsAllowMethods  = "GET, POST, PATCH, DELETE, OPTIONS"
	corsAllowHeaders  = "Authorization, Content-Type, Accept, Last-Event-ID"
	corsExposeHeaders = "Retry-After, X-Quota-Used"
	corsMaxAge        = "86400"
)

// originPolicy decides which Origin values receive CORS headers.
// "*" admits any origin but disables credentials.
type originPolicy struct {
	any     bool
	origins map[string]struct{}
}

func newOriginPolicy(allowedOrigins []string) originPolicy {
	p := originPolicy{origins: make(map[string]struct{}, len(allowedOrigins))}
	for _, o := range allowedOrigins {
		o = strings.TrimSuffix(strings.TrimSpace(o), "/")
		switch o {
		case "":
		case "*":
			p.any = true
		default:
			p.origins[o] = struct{}{}
		}
	}
	return p
}

// apply writes the CORS response headers for origin and reports whether it is allowed.
func (p originPolicy) apply(h http.Header, origin string) bool {
	h.Add("Vary", "Origin")
	if origin == "" {
		return false
	}
	if _, ok := p.origins[origin]; ok {
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
	} else if p.any {
		h.Set("Access-Control-Allow-Origin", "*")
	} else {
		return false
	}
	h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
	return true
}

// CORS adds CORS headers for allowed origins and answers preflight requests
// with 204. OPTIONS requests that are not preflights reach next.
func CORS(allowedOrigins []string, next http.Handler) http.Handler {
	policy := newOriginPolicy(allowedOrigins)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed := policy.apply(w.Header(), r.Header.Get("Origin"))

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if allowed {
				w.Header().Set("Access-Control-Allow-Methods", corsAllowMethods)
				w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
				w.Header().Set("Access-Control-Max-Age", corsMaxAge)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
