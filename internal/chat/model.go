package chat

import (
	"time"

	"campuschat/internal/user"
)

// ---------------------------------------------
// 🗄️ Database Models
// ---------------------------------------------

// Chat is a private conversation between two users, stored with UserLowID < UserHighID.
type Chat struct {
	ID            int64     `json:"id"`
	UserLowID     int64     `json:"userLowId"`
	UserHighID    int64     `json:"userHighId"`
	CreatedAt     time.Time `json:"createdAt"`
	LastMessageAt time.Time `json:"lastMessageAt"` // rewritten with every message insert
}

func (c *Chat) HasParticipant(userID int64) bool {
	return c.UserLowID == userID || c.UserHighID == userID
}

// Other returns the participant that is not userID.
func (c *Chat) Other(userID int64) int64 {
	if c.UserLowID == userID {
		return c.UserHighID
	}
	return c.UserLowID
}

// CanonicalPair orders two user ids so a pair has one identity regardless of direction.
func CanonicalPair(a, b int64) (low, high int64) {
	if a < b {
		return a, b
	}
	return b, a
}

// Message is a private chat message. Sender name and avatar are resolved via JOIN.
type Message struct {
	ID           int64     `json:"id"`
	ChatID       int64     `json:"chatId"`
	SenderID     int64     `json:"senderId"`
	SenderName   string    `json:"senderName"`
	SenderAvatar string    `json:"senderAvatar"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
	IsRead       bool      `json:"isRead"`
	IsFromMe     bool      `json:"isFromMe"`
}

// ---------------------------------------------
// ⚡ API Models
// ---------------------------------------------

type LastMessage struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsFromMe  bool      `json:"isFromMe"`
}

type Summary struct {
	ChatID        int64              `json:"chatId"`
	OtherUser     user.PublicProfile `json:"otherUser"`
	LastMessage   *LastMessage       `json:"lastMessage"`
	UnreadCount   int                `json:"unreadCount"`
	CreatedAt     time.Time          `json:"createdAt"`
	LastMessageAt time.Time          `json:"lastMessageAt"`
}

type Header struct {
	ChatID        int64              `json:"chatId"`
	OtherUser     user.PublicProfile `json:"otherUser"`
	CreatedAt     time.Time          `json:"createdAt"`
	LastMessageAt time.Time          `json:"lastMessageAt"`
}

type createChatRequest struct {
	User1ID int64 `json:"user1Id"`
	User2ID int64 `json:"user2Id"`
}

type createChatResponse struct {
	ChatID int64 `json:"chatId"`
}

type sendMessageRequest struct {
	SenderID int64  `json:"senderId"`
	Content  string `json:"content"`
}

type sendMessageResponse struct {
	Success   bool  `json:"success"`
	MessageID int64 `json:"messageId"`
}

type successResponse struct {
	Success bool `json:"success"`
}
