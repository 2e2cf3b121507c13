package api

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"ticketchat/pkg/auth"
	"ticketchat/pkg/chat"
	"ticketchat/pkg/models"
	"ticketchat/pkg/realtime"
	"ticketchat/pkg/security"
	"ticketchat/pkg/store"
)

const testAPIKey = "test-backend-key"

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	key := make([]byte, security.KeySize)
	_, err = rand.Read(key)
	require.NoError(t, err)
	ci, err := security.NewCipher(key)
	require.NoError(t, err)
	t.Cleanup(ci.Close)

	svc := chat.NewService(st, ci, nil)
	hub := realtime.NewHub(svc)
	mw := auth.NewMiddleware([]string{testAPIKey}, false, 1000, 1000)
	return NewRouter(svc, hub, mw, st)
}

func doJSON(t *testing.T, h http.Handler, method, path, actor string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	if actor != "" {
		req.Header.Set("X-Actor-ID", actor)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createChat(t *testing.T, h http.Handler, actor string, participants ...string) models.Conversation {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/v1/chats", actor,
		map[string]any{"title": "test", "participants": participants})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var c models.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	return c
}

func TestHealthAndReady(t *testing.T) {
	h := newTestRouter(t)
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestAuthBoundary(t *testing.T) {
	h := newTestRouter(t)

	// No bearer key.
	req := httptest.NewRequest(http.MethodGet, "/v1/chats", nil)
	req.Header.Set("X-Actor-ID", "alice")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong bearer key.
	req = httptest.NewRequest(http.MethodGet, "/v1/chats", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	req.Header.Set("X-Actor-ID", "alice")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid key but no actor.
	rec = doJSON(t, h, http.MethodGet, "/v1/chats", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatLifecycle(t *testing.T) {
	h := newTestRouter(t)

	c := createChat(t, h, "alice", "alice", "bob")
	require.NotEmpty(t, c.ID)

	// Sending and reading messages.
	rec := doJSON(t, h, http.MethodPost, "/v1/chats/"+c.ID+"/messages", "alice",
		map[string]any{"text": "hello"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sent models.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sent))
	require.Equal(t, "hello", sent.Text)

	rec = doJSON(t, h, http.MethodGet, "/v1/chats/"+c.ID+"/messages?page=1&limit=10", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page models.MessagePage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Equal(t, 1, page.Total)
	require.Equal(t, "hello", page.Items[0].Text)

	// Listing shows the unread count for the other participant.
	rec = doJSON(t, h, http.MethodGet, "/v1/chats", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var chats models.ConversationPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chats))
	require.Len(t, chats.Items, 1)
	require.Equal(t, 1, chats.Items[0].UnreadCount)

	rec = doJSON(t, h, http.MethodPost, "/v1/chats/"+c.ID+"/read", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodDelete, "/v1/chats/"+c.ID, "alice", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestErrorEnvelope(t *testing.T) {
	h := newTestRouter(t)
	c := createChat(t, h, "alice", "alice", "bob")

	rec := doJSON(t, h, http.MethodGet, "/v1/chats/"+c.ID+"/messages", "mallory", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "FORBIDDEN", body.Code)
	require.NotEmpty(t, body.Error)

	rec = doJSON(t, h, http.MethodGet, "/v1/chats/chat-missing/messages", "alice", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/v1/chats?page=zero", "alice", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/chats", "alice",
		map[string]any{"participants": []string{"alice"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParticipantEndpoints(t *testing.T) {
	h := newTestRouter(t)
	c := createChat(t, h, "alice", "alice", "bob")

	rec := doJSON(t, h, http.MethodPatch, "/v1/chats/"+c.ID+"/participants", "alice",
		map[string]any{"add": []string{"carol"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got models.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, []string{"alice", "bob", "carol"}, got.Participants)

	// Roster sync is a ticket-chat operation; on a free chat it conflicts.
	rec = doJSON(t, h, http.MethodPut, "/v1/chats/"+c.ID+"/participants", "alice",
		map[string]any{"participants": []string{"alice"}})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestEnsureTicketChatEndpoint(t *testing.T) {
	h := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPost, "/v1/tickets/ticket-42/chat", "system",
		map[string]any{"participants": []string{"agent", "customer"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var first struct {
		models.Conversation
		Created bool `json:"created"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	require.True(t, first.Created)

	rec = doJSON(t, h, http.MethodPost, "/v1/tickets/ticket-42/chat", "system",
		map[string]any{"participants": []string{"supervisor"}})
	require.Equal(t, http.StatusOK, rec.Code)
	var second struct {
		models.Conversation
		Created bool `json:"created"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	require.False(t, second.Created)
	require.Equal(t, first.ID, second.ID)
	require.Contains(t, second.Participants, "supervisor")
}
