// Package realtime relays ephemeral chat events (presence, typing, read
// receipts) over websockets. Connections are grouped into per-conversation
// rooms; the hub holds no durable state and re-validates participation
// against the store on every inbound event, so a participant removed after
// joining stops being relayed to immediately.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"ticketchat/pkg/chat"
	"ticketchat/pkg/logger"
	"ticketchat/pkg/telemetry"
)

// Inbound event types.
const (
	EventJoin        = "join"
	EventTypingStart = "typing:start"
	EventTypingStop  = "typing:stop"
	EventRead        = "read"
)

// Outbound event types.
const (
	EventJoined     = "joined"
	EventReadUpdate = "read:update"
)

// Event is the wire frame in both directions. Inbound frames carry Type,
// ChatID and optionally At; outbound frames add the acting principal and
// read-pointer fields.
type Event struct {
	Type        string     `json:"type"`
	ChatID      string     `json:"chatId"`
	At          *time.Time `json:"at,omitempty"`
	PrincipalID string     `json:"principalId,omitempty"`
	LastReadAt  *time.Time `json:"lastReadAt,omitempty"`
}

type Hub struct {
	svc *chat.Service

	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

func NewHub(svc *chat.Service) *Hub {
	return &Hub{svc: svc, rooms: map[string]map[*Client]struct{}{}}
}

// handleEvent dispatches one inbound frame. Each event is an independent
// unit of work; the read pump runs these in their own goroutines so a slow
// store call never blocks the connection.
func (h *Hub) handleEvent(c *Client, ev Event) {
	if ev.ChatID == "" {
		return
	}
	telemetry.WSEvents.WithLabelValues(ev.Type).Inc()
	switch ev.Type {
	case EventJoin:
		h.join(c, ev.ChatID)
	case EventTypingStart, EventTypingStop:
		// Re-check membership: the client may have been removed since join.
		if _, err := h.svc.Guard().AssertParticipant(ev.ChatID, c.actor); err != nil {
			return
		}
		h.broadcast(ev.ChatID, Event{Type: ev.Type, ChatID: ev.ChatID, PrincipalID: c.actor}, c)
	case EventRead:
		var at time.Time
		if ev.At != nil {
			at = *ev.At
		}
		lastRead, err := h.svc.MarkRead(c.ctx, ev.ChatID, c.actor, at)
		if err != nil {
			logger.Log.Debug("ws_read_rejected",
				zap.String("chat", ev.ChatID), zap.String("actor", c.actor), zap.Error(err))
			return
		}
		// Include the sender so the reader's other devices converge too.
		h.broadcast(ev.ChatID, Event{
			Type:        EventReadUpdate,
			ChatID:      ev.ChatID,
			PrincipalID: c.actor,
			LastReadAt:  &lastRead,
		}, nil)
	default:
		logger.Log.Debug("ws_unknown_event", zap.String("type", ev.Type))
	}
}

// join adds the connection to the chat's room after an independent guard
// check. Unauthorized attempts are dropped silently: no membership, no
// error frame, nothing that would confirm the conversation exists.
func (h *Hub) join(c *Client, chatID string) {
	if _, err := h.svc.Guard().AssertParticipant(chatID, c.actor); err != nil {
		logger.Log.Debug("ws_join_denied",
			zap.String("chat", chatID), zap.String("actor", c.actor), zap.Error(err))
		return
	}
	h.mu.Lock()
	room, ok := h.rooms[chatID]
	if !ok {
		room = map[*Client]struct{}{}
		h.rooms[chatID] = room
	}
	room[c] = struct{}{}
	c.joined[chatID] = struct{}{}
	h.mu.Unlock()

	h.broadcast(chatID, Event{Type: EventJoined, ChatID: chatID, PrincipalID: c.actor}, c)
}

// broadcast sends ev to every room member, optionally excluding one
// connection. Clients with a full send buffer are dropped from the room,
// matching the slow-consumer policy of the write pump.
func (h *Hub) broadcast(chatID string, ev Event, except *Client) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[chatID]
	for member := range room {
		if member == except {
			continue
		}
		select {
		case member.send <- payload:
		default:
			h.evictLocked(member)
		}
	}
}

// remove detaches the connection from every room it joined.
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.evictLocked(c)
}

func (h *Hub) evictLocked(c *Client) {
	for chatID := range c.joined {
		if room, ok := h.rooms[chatID]; ok {
			delete(room, c)
			if len(room) == 0 {
				delete(h.rooms, chatID)
			}
		}
	}
	c.joined = map[string]struct{}{}
	c.closeOnce.Do(func() { close(c.send) })
}

// roomSize reports current membership; used by tests and debug logging.
func (h *Hub) roomSize(chatID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[chatID])
}
