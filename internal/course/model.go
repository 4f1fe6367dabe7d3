package course

import "time"

type Course struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Message is a course-wide chat message as stored and as pushed to course groups.
type Message struct {
	ID           int64     `json:"id"`
	CourseID     int64     `json:"courseId"`
	SenderID     int64     `json:"senderId"`
	SenderName   string    `json:"senderName"`
	SenderAvatar string    `json:"senderAvatar"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
}

type createCourseRequest struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type enrollRequest struct {
	UserID int64 `json:"userId"`
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
