package chat

import (
	"net/http"

	"go.uber.org/zap"

	"campuschat/internal/apperr"
	"campuschat/internal/httpx"
	myMiddleware "campuschat/internal/middleware"
)

type Handler struct {
	service *Service
	log     *zap.Logger
}

func NewHandler(service *Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{service: service, log: log}
}

// ListForUser serves GET /chats/user/{userId}.
func (h *Handler) ListForUser(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.PathInt64(r, "userId")
	if err == nil {
		err = myMiddleware.RequireSelf(r, userID)
	}
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}

	summaries, err := h.service.ListChatsForUser(r.Context(), userID)
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, summaries)
}

// Create serves POST /chats/create.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createChatRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	if myMiddleware.RequireSelf(r, req.User1ID) != nil && myMiddleware.RequireSelf(r, req.User2ID) != nil {
		httpx.WriteError(w, h.log, r, apperr.Validation("signed-in user must be one of the chat participants"))
		return
	}

	chatID, err := h.service.CreateOrGetChat(r.Context(), req.User1ID, req.User2ID)
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, createChatResponse{ChatID: chatID})
}

// Messages serves GET /chats/{chatId}/messages?userId=. Reading marks the chat read.
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	chatID, userID, ok := h.chatAndViewer(w, r)
	if !ok {
		return
	}
	messages, err := h.service.ListMessages(r.Context(), chatID, userID)
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, messages)
}

// Send serves POST /chats/{chatId}/messages.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	chatID, err := httpx.PathInt64(r, "chatId")
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	var req sendMessageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	if err := myMiddleware.RequireSelf(r, req.SenderID); err != nil {
		httpx.WriteError(w, h.log, r, apperr.Validation("senderId must be the signed-in user"))
		return
	}

	msg, err := h.service.SendMessage(r.Context(), chatID, req.SenderID, req.Content)
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sendMessageResponse{Success: true, MessageID: msg.ID})
}

// Header serves GET /chats/{chatId}?userId=.
func (h *Handler) Header(w http.ResponseWriter, r *http.Request) {
	chatID, userID, ok := h.chatAndViewer(w, r)
	if !ok {
		return
	}
	header, err := h.service.GetHeader(r.Context(), chatID, userID)
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, header)
}

// Delete serves DELETE /chats/{chatId}?userId=.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	chatID, userID, ok := h.chatAndViewer(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteChat(r.Context(), chatID, userID); err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *Handler) chatAndViewer(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	chatID, err := httpx.PathInt64(r, "chatId")
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return 0, 0, false
	}
	userID, err := httpx.QueryInt64(r, "userId")
	if err == nil {
		err = myMiddleware.RequireSelf(r, userID)
	}
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return 0, 0, false
	}
	return chatID, userID, true
}
