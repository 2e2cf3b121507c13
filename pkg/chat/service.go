// Package chat contains the orchestration layer: conversation lifecycle,
// message send/retrieve, participant edits, read tracking and ticket-chat
// synchronization, composed from the store, the cipher, the guard and the
// unread tracker.
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"ticketchat/pkg/apperr"
	"ticketchat/pkg/logger"
	"ticketchat/pkg/models"
	"ticketchat/pkg/security"
	"ticketchat/pkg/store"
	"ticketchat/pkg/telemetry"
)

const (
	previewText       = "new message"
	previewAttachment = "new message with attachment"
)

var idSeq uint64

func genChatID() string {
	return fmt.Sprintf("chat-%d-%d", time.Now().UTC().UnixNano(), atomic.AddUint64(&idSeq, 1))
}

func genMsgID() string {
	return fmt.Sprintf("msg-%d-%d", time.Now().UTC().UnixNano(), atomic.AddUint64(&idSeq, 1))
}

type Service struct {
	store    *store.Store
	cipher   *security.Cipher
	guard    *Guard
	tracker  *Tracker
	notifier Notifier
}

func NewService(st *store.Store, ci *security.Cipher, n Notifier) *Service {
	if n == nil {
		n = NopNotifier{}
	}
	g := NewGuard(st)
	return &Service{
		store:    st,
		cipher:   ci,
		guard:    g,
		tracker:  NewTracker(st, g),
		notifier: n,
	}
}

// Guard exposes the participation check for the realtime gateway, which
// authorizes joins independently of any HTTP call.
func (s *Service) Guard() *Guard { return s.guard }

// normalizeParticipants trims, drops empties and deduplicates while keeping
// first-seen order, so listings stay stable.
func normalizeParticipants(ids []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// CreateFreeChat creates a freestanding group conversation. The normalized
// participant set must have at least two members and include the actor.
func (s *Service) CreateFreeChat(ctx context.Context, actorID, title string, participants []string) (*models.Conversation, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return nil, apperr.Validation("actor id is required")
	}
	parts := normalizeParticipants(participants)
	if len(parts) < 2 {
		return nil, apperr.Validation("minimum 2 participants")
	}
	found := false
	for _, p := range parts {
		if p == actorID {
			found = true
			break
		}
	}
	if !found {
		return nil, apperr.Validation("participants must include the actor")
	}
	now := time.Now().UTC()
	c := &models.Conversation{
		ID:           genChatID(),
		ContextType:  models.ContextFree,
		Title:        strings.TrimSpace(title),
		Participants: parts,
		Active:       true,
		CreatedBy:    actorID,
		UpdatedBy:    actorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateConversation(c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListMyChats lists the caller's active conversations, most recently
// updated first, each enriched with participant count, unread count and the
// caller's read pointer.
func (s *Service) ListMyChats(ctx context.Context, actorID string, page, limit int, contextType models.ContextType, search string) (*models.ConversationPage, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return nil, apperr.Validation("actor id is required")
	}
	filter := store.ConversationFilter{
		Participant: actorID,
		ContextType: contextType,
		Search:      search,
		ActiveOnly:  true,
	}
	items, total, err := s.store.ListConversations(filter, page, limit)
	if err != nil {
		return nil, err
	}
	out := make([]models.ChatSummary, 0, len(items))
	for i := range items {
		c := items[i]
		unread, err := s.tracker.UnreadCount(&c, actorID)
		if err != nil {
			return nil, err
		}
		out = append(out, models.ChatSummary{
			Conversation:      c,
			ParticipantsCount: len(c.Participants),
			UnreadCount:       unread,
			LastReadAt:        s.tracker.LastReadAt(&c, actorID),
		})
	}
	return &models.ConversationPage{Items: out, PageInfo: models.NewPageInfo(total, page, limit)}, nil
}

// GetMessages returns one page of a conversation's messages, newest first,
// decrypted. A failed authentication on any record aborts the whole read.
func (s *Service) GetMessages(ctx context.Context, chatID, actorID string, page, limit int) (*models.MessagePage, error) {
	if _, err := s.guard.AssertParticipant(chatID, actorID); err != nil {
		return nil, err
	}
	msgs, total, err := s.store.ListMessages(chatID, store.NewestFirst, page, limit)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		text, err := s.cipher.Decrypt(security.Envelope{
			CipherText: msgs[i].CipherText,
			IV:         msgs[i].IV,
			AuthTag:    msgs[i].AuthTag,
		})
		if err != nil {
			logger.Log.Error("message_decrypt_failed",
				zap.String("chat", chatID), zap.String("msg", msgs[i].ID), zap.Error(err))
			return nil, err
		}
		msgs[i].Text = text
	}
	return &models.MessagePage{Items: msgs, PageInfo: models.NewPageInfo(total, page, limit)}, nil
}

// SendMessage encrypts and persists a message, updates the conversation
// summary and notifies the other participants. Notification failures are
// logged and counted, never surfaced.
func (s *Service) SendMessage(ctx context.Context, chatID, actorID, text string, attachments []models.Attachment) (*models.Message, error) {
	conv, err := s.guard.AssertParticipant(chatID, actorID)
	if err != nil {
		return nil, err
	}
	hasText := strings.TrimSpace(text) != ""
	if !hasText && len(attachments) == 0 {
		return nil, apperr.Validation("message requires text or attachments")
	}
	env, err := s.cipher.Encrypt(text)
	if err != nil {
		return nil, err
	}
	preview := previewText
	if len(attachments) > 0 {
		preview = previewAttachment
	}
	actorID = strings.TrimSpace(actorID)
	now := time.Now().UTC()
	msg := &models.Message{
		ID:          genMsgID(),
		ChatID:      chatID,
		SenderID:    actorID,
		CipherText:  env.CipherText,
		IV:          env.IV,
		AuthTag:     env.AuthTag,
		Preview:     preview,
		Attachments: attachments,
		CreatedAt:   now,
	}
	if err := s.store.AppendMessage(msg); err != nil {
		return nil, err
	}
	if _, err := s.store.UpdateConversation(chatID, func(c *models.Conversation) error {
		c.LastMessage = &models.LastMessage{Preview: preview, At: now, Sender: actorID}
		c.UpdatedBy = actorID
		return nil
	}); err != nil {
		return nil, err
	}
	telemetry.MessagesSent.Inc()

	recipients := make([]string, 0, len(conv.Participants))
	for _, p := range conv.Participants {
		if strings.TrimSpace(p) != actorID {
			recipients = append(recipients, strings.TrimSpace(p))
		}
	}
	if len(recipients) > 0 {
		go s.dispatchNotification(chatID, actorID, preview, recipients)
	}

	// Echo the plaintext back for immediate display; it was never stored.
	if hasText {
		msg.Text = text
	}
	return msg, nil
}

// dispatchNotification is fire-and-forget: errors are routed through the
// logger and a counter so they stay diagnosable without blocking a send.
func (s *Service) dispatchNotification(chatID, actorID, body string, recipients []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.notifier.Dispatch(ctx, Notification{
		Recipients: recipients,
		ActorID:    actorID,
		Type:       "chat:message",
		Title:      "New message",
		Body:       body,
		Target:     chatID,
		Meta:       map[string]any{"chatId": chatID},
	})
	if err != nil {
		telemetry.NotifyFailures.Inc()
		logger.Log.Warn("notify_dispatch_failed",
			zap.String("chat", chatID),
			zap.Int("recipients", len(recipients)),
			zap.Error(err))
	}
}

// MarkRead updates the caller's read pointer; see Tracker.MarkRead.
func (s *Service) MarkRead(ctx context.Context, chatID, actorID string, at time.Time) (time.Time, error) {
	return s.tracker.MarkRead(chatID, actorID, at)
}

// PatchParticipants applies add/remove sets to a free conversation. The
// two-participant minimum is re-validated after the change; a violating
// edit is rejected without persisting anything.
func (s *Service) PatchParticipants(ctx context.Context, chatID, actorID string, add, remove []string) (*models.Conversation, error) {
	conv, err := s.guard.AssertParticipant(chatID, actorID)
	if err != nil {
		return nil, err
	}
	if conv.ContextType != models.ContextFree {
		return nil, apperr.Conflict("participants of a ticket chat are managed by the ticket")
	}
	addSet := normalizeParticipants(add)
	removeSet := map[string]struct{}{}
	for _, r := range normalizeParticipants(remove) {
		removeSet[r] = struct{}{}
	}
	return s.store.UpdateConversation(chatID, func(c *models.Conversation) error {
		next := make([]string, 0, len(c.Participants)+len(addSet))
		seen := map[string]struct{}{}
		for _, p := range append(append([]string{}, c.Participants...), addSet...) {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if _, dropped := removeSet[p]; dropped {
				continue
			}
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			next = append(next, p)
		}
		if len(next) < 2 {
			return apperr.Conflict("a free chat needs at least 2 participants")
		}
		c.Participants = next
		c.UpdatedBy = strings.TrimSpace(actorID)
		return nil
	})
}

// DeactivateChat soft-deletes: the conversation stays queryable by id but
// disappears from listings. Messages are untouched.
func (s *Service) DeactivateChat(ctx context.Context, chatID, actorID string) error {
	if _, err := s.guard.AssertParticipant(chatID, actorID); err != nil {
		return err
	}
	_, err := s.store.UpdateConversation(chatID, func(c *models.Conversation) error {
		c.Active = false
		c.UpdatedBy = strings.TrimSpace(actorID)
		return nil
	})
	if err == nil {
		logger.Log.Info("conversation_deactivated", zap.String("chat", chatID), zap.String("actor", actorID))
	}
	return err
}

// EnsureTicketChat finds or creates the conversation bound to a ticket.
// Repeat calls for the same ticket return the same conversation; new
// participants are merged in, never removed.
func (s *Service) EnsureTicketChat(ctx context.Context, ticketID string, participants []string, actorID string) (*models.Conversation, bool, error) {
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return nil, false, apperr.Validation("ticket id is required")
	}
	parts := normalizeParticipants(participants)

	existing, err := s.store.FindTicketChat(ticketID)
	if err == nil {
		merged, uerr := s.mergeTicketParticipants(existing, parts, actorID)
		if uerr != nil {
			return nil, false, uerr
		}
		return merged, false, nil
	}
	if !apperr.IsCode(err, apperr.CodeNotFound) {
		return nil, false, err
	}

	now := time.Now().UTC()
	c := &models.Conversation{
		ID:           genChatID(),
		ContextType:  models.ContextTicket,
		ContextID:    ticketID,
		Participants: parts,
		Active:       true,
		CreatedBy:    strings.TrimSpace(actorID),
		UpdatedBy:    strings.TrimSpace(actorID),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if cerr := s.store.CreateConversation(c); cerr != nil {
		// Lost a create race: another caller claimed the ticket first.
		if apperr.IsCode(cerr, apperr.CodeConflict) {
			won, ferr := s.store.FindTicketChat(ticketID)
			if ferr != nil {
				return nil, false, cerr
			}
			merged, uerr := s.mergeTicketParticipants(won, parts, actorID)
			if uerr != nil {
				return nil, false, uerr
			}
			return merged, false, nil
		}
		return nil, false, cerr
	}
	return c, true, nil
}

func (s *Service) mergeTicketParticipants(c *models.Conversation, parts []string, actorID string) (*models.Conversation, error) {
	missing := false
	for _, p := range parts {
		if !c.HasParticipant(p) {
			missing = true
			break
		}
	}
	if !missing {
		return c, nil
	}
	return s.store.UpdateConversation(c.ID, func(cur *models.Conversation) error {
		cur.Participants = normalizeParticipants(append(cur.Participants, parts...))
		cur.UpdatedBy = strings.TrimSpace(actorID)
		return nil
	})
}

// SyncTicketChatParticipants replaces the full participant set of a ticket
// chat with the ticket's current roster. Unlike PatchParticipants this is a
// full replace and is exempt from the two-participant minimum: the roster
// may legitimately shrink to one or zero during reassignment.
func (s *Service) SyncTicketChatParticipants(ctx context.Context, chatID string, participants []string, actorID string) (*models.Conversation, error) {
	conv, err := s.guard.AssertParticipant(chatID, actorID)
	if err != nil {
		return nil, err
	}
	if conv.ContextType != models.ContextTicket {
		return nil, apperr.Conflict("participant sync applies to ticket chats only")
	}
	parts := normalizeParticipants(participants)
	return s.store.UpdateConversation(chatID, func(c *models.Conversation) error {
		c.Participants = parts
		c.UpdatedBy = strings.TrimSpace(actorID)
		return nil
	})
}
