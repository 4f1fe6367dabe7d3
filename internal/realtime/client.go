package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 4096                // Maximum message size allowed from peer.
	sendBuffer     = 256
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	ID       string
	UserID   int64
	Username string
	Hub      *Hub
	Conn     *websocket.Conn
	// Buffered channel of outbound frames. Only the hub writes to or closes it.
	Send chan []byte

	groups     map[string]struct{} // owned by the hub goroutine
	authorizer Authorizer
	log        *zap.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, userID int64, username string, authorizer Authorizer) *Client {
	return &Client{
		ID:         uuid.NewString(),
		UserID:     userID,
		Username:   username,
		Hub:        hub,
		Conn:       conn,
		Send:       make(chan []byte, sendBuffer),
		groups:     make(map[string]struct{}),
		authorizer: authorizer,
		log:        hub.log,
	}
}

// ReadPump pumps invocations from the websocket connection to the hub.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Info("websocket closed unexpectedly", zap.String("conn_id", c.ID), zap.Error(err))
			}
			break
		}

		var inv Invocation
		if err := json.Unmarshal(message, &inv); err != nil {
			c.Hub.changeMembership(membershipChange{client: c, err: "malformed invocation"})
			continue
		}
		c.Hub.changeMembership(c.resolve(inv))
	}
}

// resolve turns an invocation into a membership change, checking join permissions.
// Authorization runs here so database lookups never block the hub loop.
func (c *Client) resolve(inv Invocation) membershipChange {
	change := membershipChange{client: c, id: inv.ID}
	if inv.Target <= 0 {
		change.err = "invalid target"
		return change
	}

	switch inv.Method {
	case MethodJoinChatGroup, MethodLeaveChatGroup:
		change.group = ChatGroup(inv.Target)
		change.join = inv.Method == MethodJoinChatGroup
		if change.join && c.authorizer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			ok, err := c.authorizer.IsParticipant(ctx, inv.Target, c.UserID)
			cancel()
			if err != nil {
				c.log.Warn("chat group authorization failed", zap.Int64("chat_id", inv.Target), zap.Error(err))
				change.err = "authorization failed"
			} else if !ok {
				change.err = "not found"
			}
		}
	case MethodJoinCourseGroup, MethodLeaveCourseGroup:
		change.group = CourseGroup(inv.Target)
		change.join = inv.Method == MethodJoinCourseGroup
	case MethodJoinUserGroup, MethodLeaveUserGroup:
		change.group = UserGroup(inv.Target)
		change.join = inv.Method == MethodJoinUserGroup
		if change.join && inv.Target != c.UserID {
			change.err = "not found"
		}
	default:
		change.err = "unknown method"
	}
	return change
}

// WritePump pumps frames from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The Hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Queued frames go out in the same websocket message, newline separated.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
