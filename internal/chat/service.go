package chat

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"campuschat/internal/apperr"
	"campuschat/internal/metrics"
	"campuschat/internal/realtime"
	"campuschat/internal/user"
)

type Store interface {
	GetChat(ctx context.Context, chatID int64) (*Chat, error)
	FindChat(ctx context.Context, low, high int64) (*Chat, error)
	CreateChat(ctx context.Context, low, high int64, now time.Time) (*Chat, error)
	DeleteChat(ctx context.Context, chatID int64) error
	Profile(ctx context.Context, userID int64) (user.PublicProfile, error)
	ListSummaries(ctx context.Context, userID int64) ([]Summary, error)
	MarkReadAndList(ctx context.Context, chatID, readerID int64) ([]Message, error)
	InsertMessage(ctx context.Context, chatID, senderID int64, content string, now time.Time) (*Message, error)
}

// ConnectionChecker reports whether two users hold an accepted connection.
type ConnectionChecker interface {
	AreConnected(ctx context.Context, a, b int64) (bool, error)
}

type Publisher interface {
	Publish(ctx context.Context, group, event string, payload interface{}) error
}

type Service struct {
	store       Store
	connections ConnectionChecker
	publisher   Publisher
	log         *zap.Logger
	now         func() time.Time
}

func NewService(store Store, connections ConnectionChecker, publisher Publisher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:       store,
		connections: connections,
		publisher:   publisher,
		log:         log,
		now:         time.Now,
	}
}

// CreateOrGetChat returns the chat for the pair, creating it on first use.
// Callers cannot tell a new chat from a reused one.
func (s *Service) CreateOrGetChat(ctx context.Context, userA, userB int64) (int64, error) {
	if userA <= 0 || userB <= 0 {
		return 0, apperr.Validation("user1Id and user2Id are required")
	}
	if userA == userB {
		return 0, apperr.Validation("cannot chat with yourself")
	}

	connected, err := s.connections.AreConnected(ctx, userA, userB)
	if err != nil {
		return 0, err
	}
	if !connected {
		return 0, apperr.Precondition("users are not connected")
	}

	low, high := CanonicalPair(userA, userB)
	existing, err := s.store.FindChat(ctx, low, high)
	if err == nil {
		return existing.ID, nil
	}
	if apperr.KindOf(err) != apperr.KindNotFound {
		return 0, err
	}

	created, err := s.store.CreateChat(ctx, low, high, s.timestamp())
	if err != nil {
		return 0, err
	}
	s.log.Info("chat created", zap.Int64("chat_id", created.ID), zap.Int64("user_low_id", low), zap.Int64("user_high_id", high))
	return created.ID, nil
}

func (s *Service) ListChatsForUser(ctx context.Context, userID int64) ([]Summary, error) {
	return s.store.ListSummaries(ctx, userID)
}

// ListMessages returns the chat history in chronological order and marks
// everything the other participant sent as read before returning.
func (s *Service) ListMessages(ctx context.Context, chatID, userID int64) ([]Message, error) {
	if _, err := s.participantChat(ctx, chatID, userID); err != nil {
		return nil, err
	}
	messages, err := s.store.MarkReadAndList(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		messages[i].IsFromMe = messages[i].SenderID == userID
	}
	return messages, nil
}

func (s *Service) SendMessage(ctx context.Context, chatID, senderID int64, content string) (*Message, error) {
	if err := validateContent(content); err != nil {
		return nil, err
	}
	if _, err := s.participantChat(ctx, chatID, senderID); err != nil {
		return nil, err
	}

	msg, err := s.store.InsertMessage(ctx, chatID, senderID, content, s.timestamp())
	if err != nil {
		return nil, err
	}
	metrics.MessagesSent.WithLabelValues(metrics.ChannelPrivate).Inc()

	s.publish(ctx, realtime.ChatGroup(chatID), realtime.EventReceivePrivateMessage, *msg)

	msg.IsFromMe = true
	return msg, nil
}

func (s *Service) GetHeader(ctx context.Context, chatID, userID int64) (*Header, error) {
	c, err := s.participantChat(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	other, err := s.store.Profile(ctx, c.Other(userID))
	if err != nil {
		return nil, err
	}
	return &Header{
		ChatID:        c.ID,
		OtherUser:     other,
		CreatedAt:     c.CreatedAt,
		LastMessageAt: c.LastMessageAt,
	}, nil
}

// DeleteChat removes the chat and, through the foreign key, all of its messages.
func (s *Service) DeleteChat(ctx context.Context, chatID, userID int64) error {
	if _, err := s.participantChat(ctx, chatID, userID); err != nil {
		return err
	}
	return s.store.DeleteChat(ctx, chatID)
}

// IsParticipant lets the real-time layer gate chat group joins.
func (s *Service) IsParticipant(ctx context.Context, chatID, userID int64) (bool, error) {
	_, err := s.participantChat(ctx, chatID, userID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return false, nil
	}
	return err == nil, err
}

// participantChat loads a chat, hiding it entirely from anyone outside the pair.
func (s *Service) participantChat(ctx context.Context, chatID, userID int64) (*Chat, error) {
	c, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !c.HasParticipant(userID) {
		return nil, apperr.ErrNotFound
	}
	return c, nil
}

// publish runs after the commit; a failure leaves the message stored and readable over REST.
func (s *Service) publish(ctx context.Context, group, event string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, group, event, payload); err != nil {
		s.log.Warn("message publish failed", zap.String("group", group), zap.String("event", event), zap.Error(err))
	}
}

// timestamp truncates to the store's microsecond precision.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// validateContent checks the content without altering it; messages are stored as sent.
// Postgres text columns reject invalid UTF-8 and NUL bytes.
func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return apperr.Validation("content is required")
	}
	if !utf8.ValidString(content) || strings.ContainsRune(content, 0) {
		return apperr.Validation("content must be valid UTF-8 text")
	}
	return nil
}
