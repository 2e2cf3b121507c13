package chat

import (
	"strings"
	"time"

	"ticketchat/pkg/models"
	"ticketchat/pkg/store"
)

// Tracker maintains per-participant read pointers and computes unread
// counts on demand. Counts are not incrementally maintained; the timestamp
// comparison resolves send/markRead races by construction.
type Tracker struct {
	store *store.Store
	guard *Guard
}

func NewTracker(st *store.Store, g *Guard) *Tracker {
	return &Tracker{store: st, guard: g}
}

// MarkRead sets the caller's read pointer to at (server time when zero).
// The stored pointer only moves forward: the later timestamp wins
// regardless of arrival order, and concurrent calls for different
// participants write different map keys under the chat lock.
func (t *Tracker) MarkRead(chatID, principalID string, at time.Time) (time.Time, error) {
	if _, err := t.guard.AssertParticipant(chatID, principalID); err != nil {
		return time.Time{}, err
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	key := strings.TrimSpace(principalID)
	var effective time.Time
	_, err := t.store.UpdateConversation(chatID, func(c *models.Conversation) error {
		if c.LastRead == nil {
			c.LastRead = map[string]time.Time{}
		}
		if prev, ok := c.LastRead[key]; ok && prev.After(at) {
			effective = prev
			return nil
		}
		c.LastRead[key] = at
		effective = at
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return effective, nil
}

// UnreadCount counts messages in c that principal has not seen: sent by
// someone else and created after their read pointer (all such messages when
// the pointer is absent).
func (t *Tracker) UnreadCount(c *models.Conversation, principalID string) (int, error) {
	key := strings.TrimSpace(principalID)
	var after time.Time
	if c.LastRead != nil {
		after = c.LastRead[key]
	}
	return t.store.CountMessagesAfter(c.ID, key, after)
}

// LastReadAt returns the principal's read pointer, nil when never read.
func (t *Tracker) LastReadAt(c *models.Conversation, principalID string) *time.Time {
	if c.LastRead == nil {
		return nil
	}
	if at, ok := c.LastRead[strings.TrimSpace(principalID)]; ok {
		return &at
	}
	return nil
}
