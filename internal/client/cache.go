package client

import (
	"sort"
	"sync"

	"campuschat/internal/chat"
	"campuschat/internal/course"
	"campuschat/internal/realtime"
)

// Cache holds message history per chat and per course. History comes from
// Load; pushes arrive through Merge or Apply and are deduplicated by id.
type Cache struct {
	mu      sync.Mutex
	userID  int64
	chats   map[int64][]chat.Message
	courses map[int64][]course.Message
}

func NewCache(session *Session) *Cache {
	c := &Cache{}
	if session != nil {
		c.userID = session.UserID
	}
	c.Reset()
	return c
}

// Reset drops everything; call it on Subscriber.Resync and reload.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chats = make(map[int64][]chat.Message)
	c.courses = make(map[int64][]course.Message)
}

func (c *Cache) LoadChat(chatID int64, messages []chat.Message) {
	cp := append([]chat.Message(nil), messages...)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chats[chatID] = cp
}

// MergeChat adds a pushed message unless its id is already cached. It reports whether it was added.
func (c *Cache) MergeChat(msg chat.Message) bool {
	msg.IsFromMe = msg.SenderID == c.userID

	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.chats[msg.ChatID]
	for _, m := range list {
		if m.ID == msg.ID {
			return false
		}
	}
	i := sort.Search(len(list), func(i int) bool {
		if list[i].Timestamp.Equal(msg.Timestamp) {
			return list[i].ID > msg.ID
		}
		return list[i].Timestamp.After(msg.Timestamp)
	})
	list = append(list, chat.Message{})
	copy(list[i+1:], list[i:])
	list[i] = msg
	c.chats[msg.ChatID] = list
	return true
}

func (c *Cache) ChatMessages(chatID int64) []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]chat.Message(nil), c.chats[chatID]...)
}

func (c *Cache) LoadCourse(courseID int64, messages []course.Message) {
	cp := append([]course.Message(nil), messages...)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.courses[courseID] = cp
}

func (c *Cache) MergeCourse(msg course.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.courses[msg.CourseID]
	for _, m := range list {
		if m.ID == msg.ID {
			return false
		}
	}
	i := sort.Search(len(list), func(i int) bool {
		if list[i].Timestamp.Equal(msg.Timestamp) {
			return list[i].ID > msg.ID
		}
		return list[i].Timestamp.After(msg.Timestamp)
	})
	list = append(list, course.Message{})
	copy(list[i+1:], list[i:])
	list[i] = msg
	c.courses[msg.CourseID] = list
	return true
}

func (c *Cache) CourseMessages(courseID int64) []course.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]course.Message(nil), c.courses[courseID]...)
}

// Apply merges a message event. Events that carry no message are ignored.
func (c *Cache) Apply(ev Event) (bool, error) {
	switch ev.Name {
	case realtime.EventReceivePrivateMessage:
		var msg chat.Message
		if err := ev.Decode(&msg); err != nil {
			return false, err
		}
		return c.MergeChat(msg), nil
	case realtime.EventReceiveCourseMessage:
		var msg course.Message
		if err := ev.Decode(&msg); err != nil {
			return false, err
		}
		return c.MergeCourse(msg), nil
	default:
		return false, nil
	}
}
