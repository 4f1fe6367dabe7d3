package connection

import (
	"context"
	"time"

	"go.uber.org/zap"

	"campuschat/internal/apperr"
	"campuschat/internal/realtime"
	"campuschat/internal/user"
)

var errAlreadyExists = apperr.Precondition("a connection already exists between these users")

type Store interface {
	UserExists(ctx context.Context, userID int64) (bool, error)
	Create(ctx context.Context, requesterID, receiverID int64) (*Connection, error)
	Get(ctx context.Context, id int64) (*Connection, error)
	FindBetween(ctx context.Context, a, b int64) (*Connection, error)
	SetStatus(ctx context.Context, id int64, status Status) error
	Delete(ctx context.Context, id int64) error
	AreConnected(ctx context.Context, a, b int64) (bool, error)
	ListAccepted(ctx context.Context, userID int64) ([]Entry, error)
	ListPending(ctx context.Context, userID int64) ([]Entry, error)
	ListSent(ctx context.Context, userID int64) ([]Entry, error)
	ListSuggestions(ctx context.Context, userID int64) ([]user.PublicProfile, error)
}

type Publisher interface {
	Publish(ctx context.Context, group, event string, payload interface{}) error
}

type Service struct {
	store     Store
	publisher Publisher
	log       *zap.Logger
}

func NewService(store Store, publisher Publisher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, publisher: publisher, log: log}
}

func (s *Service) Request(ctx context.Context, requesterID, receiverID int64) (*Connection, error) {
	if requesterID <= 0 || receiverID <= 0 {
		return nil, apperr.Validation("requesterId and receiverId are required")
	}
	if requesterID == receiverID {
		return nil, apperr.Validation("you can't send a connection request to yourself")
	}

	exists, err := s.store.UserExists(ctx, receiverID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.ErrNotFound
	}

	if _, err := s.store.FindBetween(ctx, requesterID, receiverID); err == nil {
		return nil, errAlreadyExists
	} else if apperr.KindOf(err) != apperr.KindNotFound {
		return nil, err
	}

	c, err := s.store.Create(ctx, requesterID, receiverID)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, receiverID, realtime.EventConnectionRequestReceived, c)
	s.notify(ctx, requesterID, realtime.EventConnectionRequestSent, c)
	return c, nil
}

// Accept marks a request accepted. Only the receiver may accept; accepting twice rewrites the same status.
func (s *Service) Accept(ctx context.Context, connectionID, actorID int64) (*Connection, error) {
	c, err := s.store.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if c.ReceiverID != actorID {
		return nil, apperr.ErrNotFound
	}
	if err := s.store.SetStatus(ctx, c.ID, StatusAccepted); err != nil {
		return nil, err
	}
	c.Status = StatusAccepted

	s.notify(ctx, c.RequesterID, realtime.EventConnectionRequestAccepted, c)
	s.notify(ctx, c.ReceiverID, realtime.EventConnectionRequestAccepted, c)
	return c, nil
}

// Reject deletes a request so the pair may ask again later.
func (s *Service) Reject(ctx context.Context, connectionID, actorID int64) error {
	return s.delete(ctx, connectionID, actorID, realtime.EventConnectionRequestRejected)
}

func (s *Service) Remove(ctx context.Context, connectionID, actorID int64) error {
	return s.delete(ctx, connectionID, actorID, realtime.EventConnectionRequestRemoved)
}

func (s *Service) delete(ctx context.Context, connectionID, actorID int64, event string) error {
	c, err := s.store.Get(ctx, connectionID)
	if err != nil {
		return err
	}
	if !c.Involves(actorID) {
		return apperr.ErrNotFound
	}
	if err := s.store.Delete(ctx, c.ID); err != nil {
		return err
	}

	s.notify(ctx, c.RequesterID, event, c)
	s.notify(ctx, c.ReceiverID, event, c)
	return nil
}

func (s *Service) AreConnected(ctx context.Context, a, b int64) (bool, error) {
	return s.store.AreConnected(ctx, a, b)
}

func (s *Service) ListAccepted(ctx context.Context, userID int64) ([]Entry, error) {
	return s.store.ListAccepted(ctx, userID)
}

func (s *Service) ListPending(ctx context.Context, userID int64) ([]Entry, error) {
	return s.store.ListPending(ctx, userID)
}

func (s *Service) ListSent(ctx context.Context, userID int64) ([]Entry, error) {
	return s.store.ListSent(ctx, userID)
}

func (s *Service) ListSuggestions(ctx context.Context, userID int64) ([]user.PublicProfile, error) {
	return s.store.ListSuggestions(ctx, userID)
}

// notify is fire-and-forget: the write already committed, so failures are only logged.
func (s *Service) notify(ctx context.Context, userID int64, event string, c *Connection) {
	if s.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	payload := Event{ConnectionID: c.ID, RequesterID: c.RequesterID, ReceiverID: c.ReceiverID, Status: c.Status}
	if err := s.publisher.Publish(pubCtx, realtime.UserGroup(userID), event, payload); err != nil {
		s.log.Warn("connection event publish failed",
			zap.String("event", event),
			zap.Int64("connection_id", c.ID),
			zap.Int64("user_id", userID),
			zap.Error(err))
	}
}
