package realtime

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ticketchat/pkg/chat"
	"ticketchat/pkg/security"
	"ticketchat/pkg/store"
)

func newTestHub(t *testing.T) (*Hub, *chat.Service) {
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
	return NewHub(svc), svc
}

// testClient builds a hub member without a real websocket; the pumps are
// never started, frames are read straight off the send buffer.
func testClient(h *Hub, actor string) *Client {
	return &Client{
		hub:    h,
		actor:  actor,
		ctx:    context.Background(),
		send:   make(chan []byte, sendBuffer),
		joined: map[string]struct{}{},
	}
}

func recvEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case raw := <-c.send:
		var ev Event
		require.NoError(t, json.Unmarshal(raw, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("expected a frame, got none")
		return Event{}
	}
}

func requireSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.send:
		t.Fatalf("expected no frame, got %s", raw)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestJoinAuthorized(t *testing.T) {
	h, svc := newTestHub(t)
	conv, err := svc.CreateFreeChat(context.Background(), "alice", "", []string{"alice", "bob"})
	require.NoError(t, err)

	a := testClient(h, "alice")
	b := testClient(h, "bob")

	h.handleEvent(a, Event{Type: EventJoin, ChatID: conv.ID})
	require.Equal(t, 1, h.roomSize(conv.ID))

	h.handleEvent(b, Event{Type: EventJoin, ChatID: conv.ID})
	require.Equal(t, 2, h.roomSize(conv.ID))

	// The earlier member hears about the join; the joiner does not.
	ev := recvEvent(t, a)
	require.Equal(t, EventJoined, ev.Type)
	require.Equal(t, "bob", ev.PrincipalID)
	requireSilent(t, b)
}

func TestJoinUnauthorizedSilentDrop(t *testing.T) {
	h, svc := newTestHub(t)
	conv, err := svc.CreateFreeChat(context.Background(), "alice", "", []string{"alice", "bob"})
	require.NoError(t, err)

	m := testClient(h, "mallory")
	h.handleEvent(m, Event{Type: EventJoin, ChatID: conv.ID})
	require.Equal(t, 0, h.roomSize(conv.ID))
	requireSilent(t, m)

	// Unknown chats drop the same way: nothing confirms existence either way.
	h.handleEvent(m, Event{Type: EventJoin, ChatID: "chat-missing"})
	requireSilent(t, m)
}

func TestTypingExcludesSender(t *testing.T) {
	h, svc := newTestHub(t)
	conv, err := svc.CreateFreeChat(context.Background(), "alice", "", []string{"alice", "bob"})
	require.NoError(t, err)

	a := testClient(h, "alice")
	b := testClient(h, "bob")
	h.handleEvent(a, Event{Type: EventJoin, ChatID: conv.ID})
	h.handleEvent(b, Event{Type: EventJoin, ChatID: conv.ID})
	recvEvent(t, a) // drain bob's join

	h.handleEvent(a, Event{Type: EventTypingStart, ChatID: conv.ID})
	ev := recvEvent(t, b)
	require.Equal(t, EventTypingStart, ev.Type)
	require.Equal(t, "alice", ev.PrincipalID)
	requireSilent(t, a)
}

func TestTypingAfterRemovalIsDropped(t *testing.T) {
	h, svc := newTestHub(t)
	ctx := context.Background()
	conv, err := svc.CreateFreeChat(ctx, "alice", "", []string{"alice", "bob", "carol"})
	require.NoError(t, err)

	a := testClient(h, "alice")
	b := testClient(h, "bob")
	h.handleEvent(a, Event{Type: EventJoin, ChatID: conv.ID})
	h.handleEvent(b, Event{Type: EventJoin, ChatID: conv.ID})
	recvEvent(t, a)

	// bob gets removed after joining; his next event must go nowhere.
	_, err = svc.PatchParticipants(ctx, conv.ID, "alice", nil, []string{"bob"})
	require.NoError(t, err)

	h.handleEvent(b, Event{Type: EventTypingStart, ChatID: conv.ID})
	requireSilent(t, a)
}

func TestReadUpdateIncludesSender(t *testing.T) {
	h, svc := newTestHub(t)
	conv, err := svc.CreateFreeChat(context.Background(), "alice", "", []string{"alice", "bob"})
	require.NoError(t, err)

	a := testClient(h, "alice")
	b := testClient(h, "bob")
	h.handleEvent(a, Event{Type: EventJoin, ChatID: conv.ID})
	h.handleEvent(b, Event{Type: EventJoin, ChatID: conv.ID})
	recvEvent(t, a)

	at := time.Now().UTC()
	h.handleEvent(a, Event{Type: EventRead, ChatID: conv.ID, At: &at})

	for _, c := range []*Client{a, b} {
		ev := recvEvent(t, c)
		require.Equal(t, EventReadUpdate, ev.Type)
		require.Equal(t, "alice", ev.PrincipalID)
		require.NotNil(t, ev.LastReadAt)
		require.True(t, ev.LastReadAt.Equal(at))
	}
}

func TestRemoveCleansRooms(t *testing.T) {
	h, svc := newTestHub(t)
	conv, err := svc.CreateFreeChat(context.Background(), "alice", "", []string{"alice", "bob"})
	require.NoError(t, err)

	a := testClient(h, "alice")
	h.handleEvent(a, Event{Type: EventJoin, ChatID: conv.ID})
	require.Equal(t, 1, h.roomSize(conv.ID))

	h.remove(a)
	require.Equal(t, 0, h.roomSize(conv.ID))

	// Removing twice is safe; the send channel closes exactly once.
	h.remove(a)
	_, open := <-a.send
	require.False(t, open)
}
