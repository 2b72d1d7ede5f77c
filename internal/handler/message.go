package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/roomcast/internal/middleware"
	"github.com/roomcast/internal/model"
	"github.com/roomcast/internal/push"
	"github.com/roomcast/internal/service"
)

type MessageHandler struct {
	messages *service.MessageService
	notifier *push.Notifier
}

func NewMessageHandler(messages *service.MessageService, notifier *push.Notifier) *MessageHandler {
	return &MessageHandler{messages: messages, notifier: notifier}
}

type postMessageRequest struct {
	Content string  `json:"content"`
	ReplyTo *string `json:"reply_to,omitempty"`
}

func (h *MessageHandler) Post(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	userID := middleware.GetUserID(r.Context())
	msg, err := h.messages.PostMessage(r.Context(), userID, chi.URLParam(r, "roomId"), req.Content, req.ReplyTo)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if h.notifier != nil {
		go h.notifier.MessageCreated(msg)
	}
	writeJSON(w, http.StatusCreated, msg)
}

type historyResponse struct {
	Messages   []model.Message `json:"messages"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messages, next, err := h.messages.ListHistory(r.Context(), userID,
		chi.URLParam(r, "roomId"), r.URL.Query().Get("cursor"), queryInt(r, "limit", 50))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Messages: messages, NextCursor: next})
}

type editMessageRequest struct {
	Content string `json:"content"`
}

func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req editMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	userID := middleware.GetUserID(r.Context())
	msg, err := h.messages.EditMessage(r.Context(), userID, chi.URLParam(r, "messageId"), req.Content)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

type reactionRequest struct {
	Emoji string `json:"emoji"`
}

func (h *MessageHandler) React(w http.ResponseWriter, r *http.Request) {
	var req reactionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	userID := middleware.GetUserID(r.Context())
	if err := h.messages.React(r.Context(), userID, chi.URLParam(r, "messageId"), req.Emoji); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) Unreact(w http.ResponseWriter, r *http.Request) {
	emoji := r.URL.Query().Get("emoji")
	userID := middleware.GetUserID(r.Context())
	if err := h.messages.Unreact(r.Context(), userID, chi.URLParam(r, "messageId"), emoji); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) GetReactions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	groups, err := h.messages.GetReactions(r.Context(), userID, chi.URLParam(r, "messageId"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}
