package realtime

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	myMiddleware "campuschat/internal/middleware"
)

// Authorizer decides whether a user may join a private chat's group.
type Authorizer interface {
	IsParticipant(ctx context.Context, chatID, userID int64) (bool, error)
}

type Handler struct {
	hub        *Hub
	authorizer Authorizer
	upgrader   websocket.Upgrader
}

// NewHandler builds the /ws endpoint. An empty allowedOrigins list accepts any origin.
func NewHandler(hub *Hub, authorizer Authorizer, allowedOrigins []string) *Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}
	return &Handler{
		hub:        hub,
		authorizer: authorizer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				return err == nil && allowed[u.Scheme+"://"+u.Host]
			},
		},
	}
}

func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID, username, ok := myMiddleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(h.hub, conn, userID, username, h.authorizer)
	if err := h.hub.Register(r.Context(), client); err != nil {
		conn.Close()
		return
	}

	// These run in new goroutines, ServeWs returns immediately.
	go client.WritePump()
	go client.ReadPump()
}
