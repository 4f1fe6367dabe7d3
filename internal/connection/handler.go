package connection

import (
	"context"
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

func (h *Handler) Request(w http.ResponseWriter, r *http.Request) {
	var req requestConnectionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	if err := myMiddleware.RequireSelf(r, req.RequesterID); err != nil {
		httpx.WriteError(w, h.log, r, apperr.Validation("requesterId must be the signed-in user"))
		return
	}

	c, err := h.service.Request(r.Context(), req.RequesterID, req.ReceiverID)
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, requestConnectionResponse{Success: true, ConnectionID: c.ID})
}

func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(ctx context.Context, id, actor int64) error {
		_, err := h.service.Accept(ctx, id, actor)
		return err
	})
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.service.Reject)
}

func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.service.Remove)
}

func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, actor int64) error) {
	id, err := httpx.PathInt64(r, "connectionId")
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	actor, _, _ := myMiddleware.UserFromContext(r.Context())
	if err := fn(r.Context(), id, actor); err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *Handler) ListAccepted(w http.ResponseWriter, r *http.Request) {
	h.listOwn(w, r, func(ctx context.Context, userID int64) (interface{}, error) {
		return h.service.ListAccepted(ctx, userID)
	})
}

func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	h.listOwn(w, r, func(ctx context.Context, userID int64) (interface{}, error) {
		return h.service.ListPending(ctx, userID)
	})
}

func (h *Handler) ListSent(w http.ResponseWriter, r *http.Request) {
	h.listOwn(w, r, func(ctx context.Context, userID int64) (interface{}, error) {
		return h.service.ListSent(ctx, userID)
	})
}

func (h *Handler) ListSuggestions(w http.ResponseWriter, r *http.Request) {
	h.listOwn(w, r, func(ctx context.Context, userID int64) (interface{}, error) {
		return h.service.ListSuggestions(ctx, userID)
	})
}

// listOwn serves per-user lists; callers only ever see their own.
func (h *Handler) listOwn(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, userID int64) (interface{}, error)) {
	userID, err := httpx.PathInt64(r, "userId")
	if err == nil {
		err = myMiddleware.RequireSelf(r, userID)
	}
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	out, err := fn(r.Context(), userID)
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
