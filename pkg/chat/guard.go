package chat

import (
	"strings"

	"ticketchat/pkg/apperr"
	"ticketchat/pkg/models"
	"ticketchat/pkg/store"
)

// Guard is the single authorization primitive: every chat operation, HTTP
// or websocket, goes through AssertParticipant before touching anything.
type Guard struct {
	store *store.Store
}

func NewGuard(st *store.Store) *Guard { return &Guard{store: st} }

// AssertParticipant loads the conversation and verifies principal
// membership. The loaded conversation is returned so callers avoid a second
// lookup.
func (g *Guard) AssertParticipant(chatID, principalID string) (*models.Conversation, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return nil, apperr.Forbidden("caller is not a participant")
	}
	c, err := g.store.GetConversation(chatID)
	if err != nil {
		return nil, err
	}
	if !c.HasParticipant(principalID) {
		return nil, apperr.Forbidden("caller is not a participant")
	}
	return c, nil
}
