package daemon

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// authMiddleware validates bearer tokens. An empty token disables
// authentication. Browsers cannot set headers on <img> tags, so GET requests
// may pass the token as ?access_token= instead.
func authMiddleware(token string, next http.Handler, onDenied func(http.ResponseWriter)) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := ""
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			presented = strings.TrimPrefix(auth, "Bearer ")
		} else if r.Method == http.MethodGet {
			presented = r.URL.Query().Get("access_token")
		}
		if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			onDenied(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
