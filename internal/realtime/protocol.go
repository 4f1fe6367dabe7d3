package realtime

import (
	"encoding/json"
	"strconv"
)

// Events pushed to clients.
const (
	EventReceivePrivateMessage     = "ReceivePrivateMessage"
	EventReceiveCourseMessage      = "ReceiveCourseMessage"
	EventConnectionRequestReceived = "ConnectionRequestReceived"
	EventConnectionRequestSent     = "ConnectionRequestSent"
	EventConnectionRequestAccepted = "ConnectionRequestAccepted"
	EventConnectionRequestRejected = "ConnectionRequestRejected"
	EventConnectionRequestRemoved  = "ConnectionRequestRemoved"
)

// Methods a client may invoke over the socket.
const (
	MethodJoinChatGroup    = "JoinChatGroup"
	MethodLeaveChatGroup   = "LeaveChatGroup"
	MethodJoinCourseGroup  = "JoinCourseGroup"
	MethodLeaveCourseGroup = "LeaveCourseGroup"
	MethodJoinUserGroup    = "JoinUserGroup"
	MethodLeaveUserGroup   = "LeaveUserGroup"
)

const (
	FrameEvent = "event"
	FrameAck   = "ack"
	FrameError = "error"
)

func ChatGroup(chatID int64) string     { return "chat_" + strconv.FormatInt(chatID, 10) }
func CourseGroup(courseID int64) string { return "course_" + strconv.FormatInt(courseID, 10) }
func UserGroup(userID int64) string     { return "user_" + strconv.FormatInt(userID, 10) }

// Invocation is what the browser SENDS to us.
type Invocation struct {
	ID     string `json:"id,omitempty"`
	Method string `json:"method"`
	Target int64  `json:"target"`
}

// Frame is everything we send back down the socket.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Event   string          `json:"event,omitempty"`
	Group   string          `json:"group,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Envelope is the unit carried by the broker between publishers and the hub.
type Envelope struct {
	Group   string          `json:"group"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}
