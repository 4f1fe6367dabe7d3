package connection

import (
	"time"

	"campuschat/internal/user"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
)

// Connection is a directed request between two users. Rejected requests are deleted, not kept.
type Connection struct {
	ID          int64     `json:"id"`
	RequesterID int64     `json:"requesterId"`
	ReceiverID  int64     `json:"receiverId"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (c *Connection) Involves(userID int64) bool {
	return c.RequesterID == userID || c.ReceiverID == userID
}

// Entry is a connection as seen by one of its users: User is always the other side.
type Entry struct {
	ConnectionID int64              `json:"connectionId"`
	Status       Status             `json:"status"`
	RequesterID  int64              `json:"requesterId"`
	RequestedAt  time.Time          `json:"requestedAt"`
	User         user.PublicProfile `json:"user"`
}

// Event is the payload pushed to both users' personal groups.
type Event struct {
	ConnectionID int64  `json:"connectionId"`
	RequesterID  int64  `json:"requesterId"`
	ReceiverID   int64  `json:"receiverId"`
	Status       Status `json:"status"`
}

type requestConnectionRequest struct {
	RequesterID int64 `json:"requesterId"`
	ReceiverID  int64 `json:"receiverId"`
}

type requestConnectionResponse struct {
	Success      bool  `json:"success"`
	ConnectionID int64 `json:"connectionId"`
}

type successResponse struct {
	Success bool `json:"success"`
}
