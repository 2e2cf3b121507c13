// Package handlers holds the REST handlers for conversations, messages and
// ticket bindings. Every request body is a typed struct decoded up front;
// authorization itself lives in the chat service, not here.
package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"ticketchat/pkg/auth"
	"ticketchat/pkg/chat"
	"ticketchat/pkg/logger"
	"ticketchat/pkg/models"
)

type chatAPI struct {
	svc *chat.Service
}

// RegisterChats mounts the conversation routes on the given (already
// authenticated) subrouter.
func RegisterChats(r *mux.Router, svc *chat.Service) {
	a := &chatAPI{svc: svc}

	r.HandleFunc("/chats", a.createChat).Methods(http.MethodPost)
	r.HandleFunc("/chats", a.listChats).Methods(http.MethodGet)
	r.HandleFunc("/chats/{id}", a.deactivateChat).Methods(http.MethodDelete)
	r.HandleFunc("/chats/{id}/messages", a.sendMessage).Methods(http.MethodPost)
	r.HandleFunc("/chats/{id}/messages", a.listMessages).Methods(http.MethodGet)
	r.HandleFunc("/chats/{id}/read", a.markRead).Methods(http.MethodPost)
	r.HandleFunc("/chats/{id}/participants", a.patchParticipants).Methods(http.MethodPatch)
	r.HandleFunc("/chats/{id}/participants", a.syncParticipants).Methods(http.MethodPut)
	r.HandleFunc("/tickets/{ticketId}/chat", a.ensureTicketChat).Methods(http.MethodPost)
}

type createChatRequest struct {
	Title        string   `json:"title"`
	Participants []string `json:"participants"`
}

func (a *chatAPI) createChat(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	var req createChatRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	c, err := a.svc.CreateFreeChat(r.Context(), actor, req.Title, req.Participants)
	if err != nil {
		writeErr(w, err)
		return
	}
	logger.Log.Info("chat_created", zap.String("chat", c.ID), zap.String("actor", actor))
	writeJSON(w, http.StatusCreated, c)
}

func (a *chatAPI) listChats(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	page, limit, err := parsePage(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	ctxType := models.ContextType(r.URL.Query().Get("contextType"))
	search := r.URL.Query().Get("search")
	out, err := a.svc.ListMyChats(r.Context(), actor, page, limit, ctxType, search)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *chatAPI) deactivateChat(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	chatID := mux.Vars(r)["id"]
	if err := a.svc.DeactivateChat(r.Context(), chatID, actor); err != nil {
		writeErr(w, err)
		return
	}
	logger.Log.Info("chat_deactivated", zap.String("chat", chatID), zap.String("actor", actor))
	w.WriteHeader(http.StatusNoContent)
}

type sendMessageRequest struct {
	Text        string              `json:"text"`
	Attachments []models.Attachment `json:"attachments"`
}

func (a *chatAPI) sendMessage(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	chatID := mux.Vars(r)["id"]
	var req sendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	msg, err := a.svc.SendMessage(r.Context(), chatID, actor, req.Text, req.Attachments)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (a *chatAPI) listMessages(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	chatID := mux.Vars(r)["id"]
	page, limit, err := parsePage(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	out, err := a.svc.GetMessages(r.Context(), chatID, actor, page, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type markReadRequest struct {
	At *time.Time `json:"at"`
}

type markReadResponse struct {
	ChatID     string    `json:"chatId"`
	LastReadAt time.Time `json:"lastReadAt"`
}

func (a *chatAPI) markRead(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	chatID := mux.Vars(r)["id"]
	var req markReadRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			writeErr(w, err)
			return
		}
	}
	var at time.Time
	if req.At != nil {
		at = *req.At
	}
	lastRead, err := a.svc.MarkRead(r.Context(), chatID, actor, at)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, markReadResponse{ChatID: chatID, LastReadAt: lastRead})
}

type patchParticipantsRequest struct {
	Add    []string `json:"add"`
	Remove []string `json:"remove"`
}

func (a *chatAPI) patchParticipants(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	chatID := mux.Vars(r)["id"]
	var req patchParticipantsRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	c, err := a.svc.PatchParticipants(r.Context(), chatID, actor, req.Add, req.Remove)
	if err != nil {
		writeErr(w, err)
		return
	}
	logger.Log.Info("chat_participants_patched",
		zap.String("chat", chatID), zap.String("actor", actor),
		zap.Int("count", len(c.Participants)))
	writeJSON(w, http.StatusOK, c)
}

type syncParticipantsRequest struct {
	Participants []string `json:"participants"`
}

func (a *chatAPI) syncParticipants(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	chatID := mux.Vars(r)["id"]
	var req syncParticipantsRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	c, err := a.svc.SyncTicketChatParticipants(r.Context(), chatID, req.Participants, actor)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type ensureTicketChatRequest struct {
	Participants []string `json:"participants"`
}

type ensureTicketChatResponse struct {
	*models.Conversation
	Created bool `json:"created"`
}

// ensureTicketChat creates the conversation bound to a ticket, or folds the
// given participants into the existing one. 201 on first creation, 200 after.
func (a *chatAPI) ensureTicketChat(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	ticketID := mux.Vars(r)["ticketId"]
	var req ensureTicketChatRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	c, created, err := a.svc.EnsureTicketChat(r.Context(), ticketID, req.Participants, actor)
	if err != nil {
		writeErr(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		logger.Log.Info("ticket_chat_created",
			zap.String("ticket", ticketID), zap.String("chat", c.ID))
	}
	writeJSON(w, status, ensureTicketChatResponse{Conversation: c, Created: created})
}
