package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"arrbridge/internal/apperr"
	"arrbridge/internal/auth"
)

type ctxKey string

const ctxKeyUserName ctxKey = "user_name"

// securityHeaders matches the fixed header set the teacher's server sets
// on every response (internal/server/middleware.go in the original copy).
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// cors allows a single configured origin (or "*" when unset, matching
// local/dev use) to call the JSON API with credentials.
func cors(allowedOrigin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := allowedOrigin
			if origin == "" {
				origin = "*"
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireBearer verifies the session token from the Authorization header
// and stashes the resolved user name in the request context.
func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(authz, "Bearer ")
		if !ok || token == "" {
			writeError(w, apperr.ErrAuth)
			return
		}
		name, valid := auth.VerifyToken(token, []byte(s.cfg.AppSecretKey), time.Now())
		if !valid {
			writeError(w, apperr.ErrAuth)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUserName, name)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userNameFromContext(ctx context.Context) string {
	name, _ := ctx.Value(ctxKeyUserName).(string)
	return name
}

// requireFeedToken checks the "token" query parameter against FEED_TOKEN —
// the credential downstream Radarr/Sonarr list consumers hold.
func (s *Server) requireFeedToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !constantTimeEqual(r.URL.Query().Get("token"), s.cfg.FeedToken) || s.cfg.FeedToken == "" {
			writeError(w, apperr.ErrAuth)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireWebhookToken checks the "token" query parameter against
// PLEX_WEBHOOK_TOKEN — shared by both the Plex webhook and the bulk sync
// endpoint.
func (s *Server) requireWebhookToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !constantTimeEqual(r.URL.Query().Get("token"), s.cfg.PlexWebhookToken) || s.cfg.PlexWebhookToken == "" {
			writeError(w, apperr.ErrAuth)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
