package http

import (
	"net/http"

	"github.com/vasiliy-maslov/farm-checkout/internal/marketplace"
)

// ForwardSessionCookie passes the buyer's Cookie header on to every
// marketplace call made while serving the request.
func ForwardSessionCookie(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cookie := r.Header.Get("Cookie"); cookie != "" {
			r = r.WithContext(marketplace.WithSessionCookie(r.Context(), cookie))
		}
		next.ServeHTTP(w, r)
	})
}
