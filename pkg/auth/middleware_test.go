package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func runThrough(t *testing.T, m *Middleware, setup func(*http.Request)) (*httptest.ResponseRecorder, string) {
	t.Helper()
	var gotActor string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor = ActorFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/v1/chats", nil)
	setup(req)
	rec := httptest.NewRecorder()
	m.Handle(next).ServeHTTP(rec, req)
	return rec, gotActor
}

func TestAPIKeyCheck(t *testing.T) {
	m := NewMiddleware([]string{"k1", "k2"}, false, 100, 100)

	rec, _ := runThrough(t, m, func(r *http.Request) {
		r.Header.Set("X-Actor-ID", "alice")
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, actor := runThrough(t, m, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer k2")
		r.Header.Set("X-Actor-ID", "alice")
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "alice", actor)
}

func TestAllowUnauth(t *testing.T) {
	m := NewMiddleware(nil, true, 100, 100)
	rec, actor := runThrough(t, m, func(r *http.Request) {
		r.Header.Set("X-Actor-ID", "dev-user")
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "dev-user", actor)
}

func TestActorFromQueryFallback(t *testing.T) {
	m := NewMiddleware(nil, true, 100, 100)

	rec, actor := runThrough(t, m, func(r *http.Request) {
		r.URL.RawQuery = "actor=ws-user"
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ws-user", actor)

	rec, _ = runThrough(t, m, func(*http.Request) {})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimitPerActor(t *testing.T) {
	m := NewMiddleware(nil, true, 1, 2)

	hit := func(actor string) int {
		rec, _ := runThrough(t, m, func(r *http.Request) {
			r.Header.Set("X-Actor-ID", actor)
		})
		return rec.Code
	}
	require.Equal(t, http.StatusOK, hit("alice"))
	require.Equal(t, http.StatusOK, hit("alice"))
	require.Equal(t, http.StatusTooManyRequests, hit("alice"))
	// Separate actors get separate buckets.
	require.Equal(t, http.StatusOK, hit("bob"))
}
