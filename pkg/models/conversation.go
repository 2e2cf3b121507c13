package models

import (
	"strings"
	"time"
)

type ContextType string

const (
	ContextTicket ContextType = "ticket"
	ContextFree   ContextType = "free"
)

// LastMessage is the denormalized summary updated on every send, used for
// chat-list rendering without touching (or decrypting) the message rows.
type LastMessage struct {
	Preview string    `json:"preview"`
	At      time.Time `json:"at"`
	Sender  string    `json:"sender"`
}

type Conversation struct {
	ID          string      `json:"id"`
	ContextType ContextType `json:"contextType"`
	// ContextID references the external ticket; set only for ticket chats
	// and unique per active conversation.
	ContextID    string   `json:"contextId,omitempty"`
	Title        string   `json:"title,omitempty"`
	Participants []string `json:"participants"`
	// LastRead maps participant id -> read pointer. Absent entry means
	// "never read".
	LastRead    map[string]time.Time `json:"lastRead,omitempty"`
	LastMessage *LastMessage         `json:"lastMessage,omitempty"`
	Active      bool                 `json:"active"`
	CreatedBy   string               `json:"createdBy,omitempty"`
	UpdatedBy   string               `json:"updatedBy,omitempty"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

// HasParticipant reports membership after trimming both sides.
func (c *Conversation) HasParticipant(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	for _, p := range c.Participants {
		if strings.TrimSpace(p) == id {
			return true
		}
	}
	return false
}

// ChatSummary is a conversation enriched for "my chats" listings.
type ChatSummary struct {
	Conversation
	ParticipantsCount int        `json:"participantsCount"`
	UnreadCount       int        `json:"unreadCount"`
	LastReadAt        *time.Time `json:"lastReadAt,omitempty"`
}
