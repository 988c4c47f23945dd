package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/ragpipe-go/internal/logging"
)

// authMiddleware requires "Authorization: Bearer <apiKey>" on the wrapped
// routes. An empty apiKey disables the check; Start warns about that once.
// Token values are never logged.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	want := []byte(apiKey)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		switch {
		case !ok:
			unauthorized(w, r, `Bearer realm="ragpipe"`, "authorization required")
		case subtle.ConstantTimeCompare([]byte(token), want) != 1:
			unauthorized(w, r, `Bearer realm="ragpipe", error="invalid_token"`, "invalid token")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func unauthorized(w http.ResponseWriter, r *http.Request, challenge, msg string) {
	logging.FromContext(r.Context()).Warn("auth rejected",
		slog.String("path", r.URL.Path),
		slog.String("reason", msg),
	)
	w.Header().Set("WWW-Authenticate", challenge)
	http.Error(w, msg, http.StatusUnauthorized)
}

// bearerToken parses a Bearer credential. The scheme is case-insensitive.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
