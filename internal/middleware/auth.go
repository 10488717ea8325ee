// Package middleware provides HTTP middlewares for authentication and logging.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerAuth is a middleware that protects the local API with a static
// bearer token.
//
// Requests must carry "Authorization: Bearer <token>". Paths listed in
// public are served without a token, the same way registration used to
// bypass certificate checks. An empty token disables the check entirely,
// which is the default for an API bound to localhost.
func BearerAuth(token string, public ...string) func(http.Handler) http.Handler {
	open := make(map[string]struct{}, len(public))
	for _, p := range public {
		open[p] = struct{}{}
	}
	want := []byte(token)

	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := open[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="gophfood"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
