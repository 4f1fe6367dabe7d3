package chat

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"campuschat/internal/apperr"
	"campuschat/internal/user"
)

type memStore struct {
	mu       sync.Mutex
	chatSeq  int64
	msgSeq   int64
	users    map[int64]user.PublicProfile
	chats    map[int64]*Chat
	messages map[int64]*Message
}

func newMemStore(userIDs ...int64) *memStore {
	m := &memStore{
		users:    make(map[int64]user.PublicProfile),
		chats:    make(map[int64]*Chat),
		messages: make(map[int64]*Message),
	}
	for _, id := range userIDs {
		m.users[id] = user.PublicProfile{ID: id, Username: "user" + strconv.FormatInt(id, 10), AvatarURL: "/a/" + strconv.FormatInt(id, 10)}
	}
	return m
}

func (m *memStore) GetChat(_ context.Context, chatID int64) (*Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[chatID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) FindChat(_ context.Context, low, high int64) (*Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.chats {
		if c.UserLowID == low && c.UserHighID == high {
			cp := *c
			return &cp, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (m *memStore) CreateChat(_ context.Context, low, high int64, now time.Time) (*Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.chats {
		if c.UserLowID == low && c.UserHighID == high {
			cp := *c
			return &cp, nil
		}
	}
	m.chatSeq++
	c := &Chat{ID: m.chatSeq, UserLowID: low, UserHighID: high, CreatedAt: now, LastMessageAt: now}
	m.chats[c.ID] = c
	cp := *c
	return &cp, nil
}

func (m *memStore) DeleteChat(_ context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chats[chatID]; !ok {
		return apperr.ErrNotFound
	}
	delete(m.chats, chatID)
	for id, msg := range m.messages {
		if msg.ChatID == chatID {
			delete(m.messages, id)
		}
	}
	return nil
}

func (m *memStore) Profile(_ context.Context, userID int64) (user.PublicProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.users[userID]
	if !ok {
		return p, apperr.ErrNotFound
	}
	return p, nil
}

func (m *memStore) chatMessages(chatID int64) []Message {
	var out []Message
	for _, msg := range m.messages {
		if msg.ChatID == chatID {
			out = append(out, *msg)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *memStore) ListSummaries(_ context.Context, userID int64) ([]Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Summary{}
	for _, c := range m.chats {
		if !c.HasParticipant(userID) {
			continue
		}
		s := Summary{ChatID: c.ID, OtherUser: m.users[c.Other(userID)], CreatedAt: c.CreatedAt, LastMessageAt: c.LastMessageAt}
		msgs := m.chatMessages(c.ID)
		for _, msg := range msgs {
			if msg.SenderID != userID && !msg.IsRead {
				s.UnreadCount++
			}
		}
		if len(msgs) > 0 {
			last := msgs[len(msgs)-1]
			s.LastMessage = &LastMessage{Content: last.Content, Timestamp: last.Timestamp, IsFromMe: last.SenderID == userID}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].LastMessageAt.After(out[j].LastMessageAt)
		}
		return out[i].ChatID > out[j].ChatID
	})
	return out, nil
}

func (m *memStore) MarkReadAndList(_ context.Context, chatID, readerID int64) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.ChatID == chatID && msg.SenderID != readerID {
			msg.IsRead = true
		}
	}
	return m.chatMessages(chatID), nil
}

func (m *memStore) InsertMessage(_ context.Context, chatID, senderID int64, content string, now time.Time) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[chatID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	m.msgSeq++
	sender := m.users[senderID]
	msg := &Message{
		ID:           m.msgSeq,
		ChatID:       chatID,
		SenderID:     senderID,
		SenderName:   sender.DisplayName(),
		SenderAvatar: sender.AvatarURL,
		Content:      content,
		Timestamp:    now,
	}
	m.messages[msg.ID] = msg
	if now.After(c.LastMessageAt) {
		c.LastMessageAt = now
	}
	cp := *msg
	return &cp, nil
}

type fakeConnections struct {
	pairs map[[2]int64]bool
}

func connected(pairs ...[2]int64) *fakeConnections {
	f := &fakeConnections{pairs: make(map[[2]int64]bool)}
	for _, p := range pairs {
		low, high := CanonicalPair(p[0], p[1])
		f.pairs[[2]int64{low, high}] = true
	}
	return f
}

func (f *fakeConnections) AreConnected(_ context.Context, a, b int64) (bool, error) {
	low, high := CanonicalPair(a, b)
	return f.pairs[[2]int64{low, high}], nil
}

type publishedEvent struct {
	group   string
	event   string
	payload interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, group, event string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{group, event, payload})
	return p.err
}

// stepClock returns a clock that advances one second per call, starting at base.
func stepClock(base time.Time) func() time.Time {
	var mu sync.Mutex
	t := base
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}
