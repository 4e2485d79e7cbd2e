// Package middleware holds the resource server's HTTP middleware: bearer authentication,
// request metrics and identity context helpers.
package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"coffee-shop-demo/internal/security"
	"coffee-shop-demo/internal/telemetry"
)

const bearerPrefix = "bearer "

// errorBody is the RFC 6750 error response written with 401s.
type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Auth returns middleware that validates the Bearer token on every request whose path does
// not start with one of publicPrefixes (e.g. "/actuator/"). A valid principal is stored in
// the request context. Public paths pass through even with a bad token.
// emitter may be nil.
func Auth(v security.Validator, publicPrefixes []string, emitter telemetry.EventEmitter, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			public := isPublic(r.URL.Path, publicPrefixes)
			token, present := ExtractBearer(r)

			if !present {
				if public {
					next.ServeHTTP(w, r)
					return
				}
				reject(w, r, emitter, log, "", "unauthorized", "Full authentication is required to access this resource")
				return
			}

			p, err := v.Validate(r.Context(), token)
			if err != nil {
				if public {
					next.ServeHTTP(w, r)
					return
				}
				reject(w, r, emitter, log, "invalid_token", "invalid_token", "Jwt validation failed")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// ExtractBearer returns the token from the Authorization header and whether a Bearer
// credential was present at all. A malformed header counts as absent.
func ExtractBearer(r *http.Request) (string, bool) {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return "", false
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(v[len(bearerPrefix):])
	return token, token != ""
}

func isPublic(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == strings.TrimSuffix(p, "/") || strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// reject writes a 401. challengeErr is the error attribute of WWW-Authenticate; empty
// yields a bare "Bearer" challenge as RFC 6750 prescribes for missing credentials.
func reject(w http.ResponseWriter, r *http.Request, emitter telemetry.EventEmitter, log zerolog.Logger, challengeErr, code, desc string) {
	challenge := "Bearer"
	if challengeErr != "" {
		challenge = fmt.Sprintf("Bearer error=%q, error_description=%q", challengeErr, desc)
	}
	w.Header().Set("WWW-Authenticate", challenge)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(errorBody{Error: code, ErrorDescription: desc})

	log.Debug().Str("path", r.URL.Path).Str("reason", code).Msg("auth: request rejected")
	telemetry.EmitAsync(emitter, log, &telemetry.Event{
		Type:     telemetry.EventAuthRejected,
		Source:   "http_auth",
		Path:     r.URL.Path,
		ClientIP: ClientIP(r),
		Reason:   code,
	})
}
