// Package auth is the request boundary: backend API-key verification,
// extraction of the acting participant and per-actor rate limiting. Token
// issuance happens elsewhere; this package only consumes identities.
package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"ticketchat/pkg/logger"
)

type ctxActorKey struct{}

// ActorFrom returns the acting participant id stashed by the middleware,
// or "" when the request never passed through it.
func ActorFrom(ctx context.Context) string {
	if v, ok := ctx.Value(ctxActorKey{}).(string); ok {
		return v
	}
	return ""
}

// WithActor is used by tests to prepare request contexts.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ctxActorKey{}, strings.TrimSpace(actor))
}

type Middleware struct {
	backendKeys map[string]struct{}
	allowUnauth bool
	limiter     limiterPool
}

func NewMiddleware(backendKeys []string, allowUnauth bool, rps float64, burst int) *Middleware {
	keys := make(map[string]struct{}, len(backendKeys))
	for _, k := range backendKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys[k] = struct{}{}
		}
	}
	return &Middleware{
		backendKeys: keys,
		allowUnauth: allowUnauth,
		limiter:     limiterPool{rps: rps, burst: burst},
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// Handle verifies the API key, resolves the acting participant from the
// X-Actor-ID header (or the actor query parameter for websocket dials,
// where custom headers are awkward) and applies the per-actor limiter.
func (m *Middleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.allowUnauth {
			key := bearerToken(r)
			if _, ok := m.backendKeys[key]; !ok {
				logger.Log.Warn("auth_rejected",
					zap.String("path", r.URL.Path), zap.String("remote", r.RemoteAddr))
				http.Error(w, `{"error":"invalid api key","code":"UNAUTHENTICATED"}`, http.StatusUnauthorized)
				return
			}
		}
		actor := strings.TrimSpace(r.Header.Get("X-Actor-ID"))
		if actor == "" {
			actor = strings.TrimSpace(r.URL.Query().Get("actor"))
		}
		if actor == "" {
			http.Error(w, `{"error":"acting participant is required","code":"VALIDATION"}`, http.StatusBadRequest)
			return
		}
		if !m.limiter.Allow(actor) {
			http.Error(w, `{"error":"rate limit exceeded","code":"RATE_LIMITED"}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}
