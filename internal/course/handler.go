package course

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

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	courses, err := h.service.ListCourses(r.Context())
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, courses)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createCourseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	c, err := h.service.CreateCourse(r.Context(), req.Code, req.Name, req.Description)
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, c)
}

// Enroll serves POST /courses/{courseId}/enroll. Users only enroll themselves.
func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) {
	courseID, err := httpx.PathInt64(r, "courseId")
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	var req enrollRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	if err := myMiddleware.RequireSelf(r, req.UserID); err != nil {
		httpx.WriteError(w, h.log, r, apperr.Validation("userId must be the signed-in user"))
		return
	}
	if err := h.service.Enroll(r.Context(), req.UserID, courseID); err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *Handler) ListForUser(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.PathInt64(r, "userId")
	if err == nil {
		err = myMiddleware.RequireSelf(r, userID)
	}
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	courses, err := h.service.ListForUser(r.Context(), userID)
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, courses)
}

// Messages serves GET /courses/{courseId}/messages.
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	courseID, err := httpx.PathInt64(r, "courseId")
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	messages, err := h.service.ListMessages(r.Context(), courseID)
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, messages)
}

// Send serves POST /courses/{courseId}/messages.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	courseID, err := httpx.PathInt64(r, "courseId")
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
	msg, err := h.service.SendMessage(r.Context(), courseID, req.SenderID, req.Content)
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sendMessageResponse{Success: true, MessageID: msg.ID})
}
