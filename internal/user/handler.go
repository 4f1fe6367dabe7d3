package user

import (
	"net/http"

	"go.uber.org/zap"

	"campuschat/internal/httpx"
)

type Handler struct {
	Service *Service
	log     *zap.Logger
}

func NewHandler(s *Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Service: s, log: log}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}

	u, err := h.Service.Register(r.Context(), &req)
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, u.Profile())
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}

	res, err := h.Service.Login(r.Context(), &req)
	if err != nil {
		if err == errInvalidCredentials {
			httpx.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		httpx.WriteError(w, h.log, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Service.SearchUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, users)
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "userId")
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	profile, err := h.Service.GetProfile(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, h.log, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, profile)
}
