// Package store persists conversations and messages in Pebble.
//
// Key layout:
//
//	chat:<chatID>                     conversation JSON
//	chat:<chatID>:msg:<ts20>-<seq6>   message JSON, key sorts chronologically
//	ticket:<ticketID>                 chatID of the active ticket conversation
//
// Message keys embed the creation timestamp (nanoseconds, zero-padded) plus
// an atomic sequence number, so stored order is creation order with a
// persisted tiebreak. Conversation mutations go through a per-chat lock so
// concurrent sends, participant edits and read-pointer writes never lose
// updates to each other.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"ticketchat/pkg/apperr"
	"ticketchat/pkg/logger"
	"ticketchat/pkg/models"
	"ticketchat/pkg/telemetry"
)

const (
	// MaxLimit bounds page sizes for every list operation.
	MaxLimit = 100
)

type Order int

const (
	NewestFirst Order = iota
	OldestFirst
)

type Store struct {
	db   *pebble.DB
	path string
	seq  uint64

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// createMu serializes conversation creation so the ticket uniqueness
	// index cannot be double-written by concurrent ensure calls.
	createMu sync.Mutex
}

// Open opens (or creates) a Pebble database at the given path.
func Open(path string) (*Store, error) {
	logger.Log.Info("opening_pebble_db", zap.String("path", path))
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Log.Error("pebble_open_failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	return &Store{db: db, path: path, locks: map[string]*sync.Mutex{}}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	logger.Log.Info("pebble_closed")
	return err
}

// Ready reports whether the store is opened and usable.
func (s *Store) Ready() bool { return s != nil && s.db != nil }

// Path returns the on-disk location of the database.
func (s *Store) Path() string { return s.path }

func chatKey(id string) []byte { return []byte("chat:" + id) }

func msgPrefix(chatID string) []byte { return []byte("chat:" + chatID + ":msg:") }

func ticketKey(ticketID string) []byte { return []byte("ticket:" + ticketID) }

func (s *Store) chatLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// NormalizePage validates the shared pagination contract: page >= 1 and
// limit in [1, MaxLimit].
func NormalizePage(page, limit int) (int, int, error) {
	if page < 1 {
		return 0, 0, apperr.Validation("page must be >= 1")
	}
	if limit < 1 || limit > MaxLimit {
		return 0, 0, apperr.Validation(fmt.Sprintf("limit must be in [1,%d]", MaxLimit))
	}
	return page, limit, nil
}

// CreateConversation persists a new conversation and, for ticket chats,
// claims the ticket index entry. Invariants of the data model are enforced
// here as the last line of defense.
func (s *Store) CreateConversation(c *models.Conversation) error {
	if s.db == nil {
		return apperr.Internal("store not open", nil)
	}
	if c.ID == "" {
		return apperr.Validation("conversation id is required")
	}
	switch c.ContextType {
	case models.ContextTicket:
		if strings.TrimSpace(c.ContextID) == "" {
			return apperr.Validation("ticket conversation requires a contextId")
		}
	case models.ContextFree:
		if len(c.Participants) < 2 {
			return apperr.Validation("minimum 2 participants")
		}
	default:
		return apperr.Validation("unknown context type")
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	if c.ContextType == models.ContextTicket {
		if existing, err := s.activeTicketChatID(c.ContextID); err == nil && existing != "" {
			return apperr.Conflict("ticket already has an active conversation")
		}
	}
	data, err := json.Marshal(c)
	if err != nil {
		return apperr.Internal("failed to marshal conversation", err)
	}
	if err := s.db.Set(chatKey(c.ID), data, pebble.Sync); err != nil {
		logger.Log.Error("save_conversation_failed", zap.String("chat", c.ID), zap.Error(err))
		return apperr.Internal("failed to persist conversation", err)
	}
	if c.ContextType == models.ContextTicket {
		if err := s.db.Set(ticketKey(c.ContextID), []byte(c.ID), pebble.Sync); err != nil {
			return apperr.Internal("failed to persist ticket index", err)
		}
	}
	telemetry.StoreOps.WithLabelValues("create_conversation").Inc()
	logger.Log.Info("conversation_created",
		zap.String("chat", c.ID),
		zap.String("contextType", string(c.ContextType)),
		zap.Int("participants", len(c.Participants)))
	return nil
}

// GetConversation loads a conversation by id.
func (s *Store) GetConversation(id string) (*models.Conversation, error) {
	if s.db == nil {
		return nil, apperr.Internal("store not open", nil)
	}
	v, closer, err := s.db.Get(chatKey(id))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, apperr.NotFound("conversation not found")
		}
		return nil, apperr.Internal("failed to read conversation", err)
	}
	defer closer.Close()
	var c models.Conversation
	if err := json.Unmarshal(v, &c); err != nil {
		return nil, apperr.Internal("invalid stored conversation", err)
	}
	return &c, nil
}

// UpdateConversation applies mutate to the current record under the chat's
// lock and persists the result. If mutate returns an error nothing is
// written and the error is returned unchanged, so invariant checks inside
// mutate abort without side effects.
func (s *Store) UpdateConversation(id string, mutate func(*models.Conversation) error) (*models.Conversation, error) {
	if s.db == nil {
		return nil, apperr.Internal("store not open", nil)
	}
	l := s.chatLock(id)
	l.Lock()
	defer l.Unlock()

	c, err := s.GetConversation(id)
	if err != nil {
		return nil, err
	}
	if err := mutate(c); err != nil {
		return nil, err
	}
	c.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(c)
	if err != nil {
		return nil, apperr.Internal("failed to marshal conversation", err)
	}
	if err := s.db.Set(chatKey(id), data, pebble.Sync); err != nil {
		logger.Log.Error("update_conversation_failed", zap.String("chat", id), zap.Error(err))
		return nil, apperr.Internal("failed to persist conversation", err)
	}
	telemetry.StoreOps.WithLabelValues("update_conversation").Inc()
	return c, nil
}

func (s *Store) activeTicketChatID(ticketID string) (string, error) {
	v, closer, err := s.db.Get(ticketKey(ticketID))
	if err != nil {
		if err == pebble.ErrNotFound {
			return "", nil
		}
		return "", err
	}
	chatID := string(v)
	closer.Close()
	c, err := s.GetConversation(chatID)
	if err != nil || !c.Active {
		return "", nil
	}
	return chatID, nil
}

// FindTicketChat resolves the active conversation bound to ticketID.
func (s *Store) FindTicketChat(ticketID string) (*models.Conversation, error) {
	if s.db == nil {
		return nil, apperr.Internal("store not open", nil)
	}
	id, err := s.activeTicketChatID(ticketID)
	if err != nil {
		return nil, apperr.Internal("failed to read ticket index", err)
	}
	if id == "" {
		return nil, apperr.NotFound("no active conversation for ticket")
	}
	return s.GetConversation(id)
}

// ConversationFilter narrows ListConversations. Zero values match all.
type ConversationFilter struct {
	Participant string
	ContextType models.ContextType
	Search      string
	ActiveOnly  bool
}

func (f ConversationFilter) matches(c *models.Conversation) bool {
	if f.ActiveOnly && !c.Active {
		return false
	}
	if f.Participant != "" && !c.HasParticipant(f.Participant) {
		return false
	}
	if f.ContextType != "" && c.ContextType != f.ContextType {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(c.Title), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

// ListConversations scans all conversations, filters, sorts by most recent
// update and returns the requested page plus the filtered total.
func (s *Store) ListConversations(f ConversationFilter, page, limit int) ([]models.Conversation, int, error) {
	if s.db == nil {
		return nil, 0, apperr.Internal("store not open", nil)
	}
	page, limit, err := NormalizePage(page, limit)
	if err != nil {
		return nil, 0, err
	}
	prefix := []byte("chat:")
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, 0, apperr.Internal("failed to open iterator", err)
	}
	defer iter.Close()

	var all []models.Conversation
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		key := iter.Key()
		if !bytes.HasPrefix(key, prefix) {
			break
		}
		// Skip message rows; conversation ids contain no colon.
		if bytes.Contains(key[len(prefix):], []byte(":")) {
			continue
		}
		var c models.Conversation
		if err := json.Unmarshal(iter.Value(), &c); err != nil {
			logger.Log.Error("list_conversations_bad_record", zap.ByteString("key", key), zap.Error(err))
			continue
		}
		if f.matches(&c) {
			all = append(all, c)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, 0, apperr.Internal("iterator failed", err)
	}
	// Most-recently-updated first; id breaks ties for a stable listing.
	sortConversations(all)

	total := len(all)
	start := (page - 1) * limit
	if start >= total {
		return []models.Conversation{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	telemetry.StoreOps.WithLabelValues("list_conversations").Inc()
	return all[start:end], total, nil
}

func sortConversations(cs []models.Conversation) {
	// insertion sort keeps this dependency-free; conversation lists per
	// participant are small.
	for i := 1; i < len(cs); i++ {
		for j := i; j > 0; j-- {
			a, b := &cs[j-1], &cs[j]
			if a.UpdatedAt.After(b.UpdatedAt) {
				break
			}
			if a.UpdatedAt.Equal(b.UpdatedAt) && a.ID >= b.ID {
				break
			}
			cs[j-1], cs[j] = cs[j], cs[j-1]
		}
	}
}

// AppendMessage persists a message under its chat with a sortable key. The
// plaintext field is cleared before writing; only the encrypted envelope is
// stored.
func (s *Store) AppendMessage(m *models.Message) error {
	if s.db == nil {
		return apperr.Internal("store not open", nil)
	}
	if m.ChatID == "" || m.SenderID == "" {
		return apperr.Validation("message requires chatId and senderId")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	ts := m.CreatedAt.UTC().UnixNano()
	n := atomic.AddUint64(&s.seq, 1)
	key := fmt.Sprintf("chat:%s:msg:%020d-%06d", m.ChatID, ts, n)

	stored := *m
	stored.Text = ""
	data, err := json.Marshal(&stored)
	if err != nil {
		return apperr.Internal("failed to marshal message", err)
	}
	if err := s.db.Set([]byte(key), data, pebble.Sync); err != nil {
		logger.Log.Error("save_message_failed", zap.String("chat", m.ChatID), zap.String("key", key), zap.Error(err))
		return apperr.Internal("failed to persist message", err)
	}
	telemetry.StoreOps.WithLabelValues("append_message").Inc()
	logger.Log.Info("message_saved", zap.String("chat", m.ChatID), zap.String("msg", m.ID))
	return nil
}

// ListMessages returns one page of a chat's messages in the requested
// order plus the total count. NewestFirst serves paged history; OldestFirst
// reconstructs a live transcript.
func (s *Store) ListMessages(chatID string, order Order, page, limit int) ([]models.Message, int, error) {
	if s.db == nil {
		return nil, 0, apperr.Internal("store not open", nil)
	}
	page, limit, err := NormalizePage(page, limit)
	if err != nil {
		return nil, 0, err
	}
	prefix := msgPrefix(chatID)
	upper := append(append([]byte{}, prefix...), 0xff)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return nil, 0, apperr.Internal("failed to open iterator", err)
	}
	defer iter.Close()

	skip := (page - 1) * limit
	var out []models.Message
	total := 0

	advance := iter.Next
	valid := iter.First()
	if order == NewestFirst {
		advance = iter.Prev
		valid = iter.Last()
	}
	for ; valid; valid = advance() {
		if total >= skip && len(out) < limit {
			var m models.Message
			if err := json.Unmarshal(iter.Value(), &m); err != nil {
				return nil, 0, apperr.Internal("invalid stored message", err)
			}
			out = append(out, m)
		}
		total++
	}
	if err := iter.Error(); err != nil {
		return nil, 0, apperr.Internal("iterator failed", err)
	}
	if out == nil {
		out = []models.Message{}
	}
	telemetry.StoreOps.WithLabelValues("list_messages").Inc()
	return out, total, nil
}

// CountMessagesAfter counts messages in a chat newer than `after` from
// senders other than excludeSender. A zero `after` counts from the
// beginning. This is the unread-count primitive.
func (s *Store) CountMessagesAfter(chatID, excludeSender string, after time.Time) (int, error) {
	if s.db == nil {
		return 0, apperr.Internal("store not open", nil)
	}
	prefix := msgPrefix(chatID)
	upper := append(append([]byte{}, prefix...), 0xff)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return 0, apperr.Internal("failed to open iterator", err)
	}
	defer iter.Close()

	count := 0
	for valid := iter.First(); valid; valid = iter.Next() {
		var m struct {
			SenderID  string    `json:"senderId"`
			CreatedAt time.Time `json:"createdAt"`
		}
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			continue
		}
		if m.SenderID == excludeSender {
			continue
		}
		if after.IsZero() || m.CreatedAt.After(after) {
			count++
		}
	}
	if err := iter.Error(); err != nil {
		return 0, apperr.Internal("iterator failed", err)
	}
	return count, nil
}

// Compact runs a full-range manual compaction; used by the maintenance job.
func (s *Store) Compact() error {
	if s.db == nil {
		return apperr.Internal("store not open", nil)
	}
	return s.db.Compact([]byte{0x00}, []byte{0xff}, true)
}
