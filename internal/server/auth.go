package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/complaintqa/internal/logging"
)

// authRealm names the protected API in WWW-Authenticate challenges.
const authRealm = `Bearer realm="cqa"`

// authMiddleware guards the question and info routes with the CQA_API_KEY
// bearer token. An empty apiKey disables the check; New warns about that
// once at startup. Refusals are 401 with a JSON error body so API clients
// parse them like every other /api error. The presented token is never
// logged.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) == 1 {
			next.ServeHTTP(w, r)
			return
		}

		log := logging.FromContext(r.Context())
		challenge, msg := authRealm, "a bearer token is required to ask questions"
		if token != "" {
			challenge, msg = authRealm+` error="invalid_token"`, "the bearer token is not valid"
		}
		log.Warn("auth: request refused", slog.Bool("token_present", token != ""))
		w.Header().Set("WWW-Authenticate", challenge)
		writeError(w, log, http.StatusUnauthorized, msg)
	})
}

// bearerToken returns the token of an "Authorization: Bearer <token>"
// header, matching the scheme case-insensitively. It returns "" when the
// header is absent or uses another scheme.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
