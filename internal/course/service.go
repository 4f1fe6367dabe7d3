package course

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"campuschat/internal/apperr"
	"campuschat/internal/metrics"
	"campuschat/internal/realtime"
)

type Store interface {
	ListCourses(ctx context.Context) ([]Course, error)
	ListForUser(ctx context.Context, userID int64) ([]Course, error)
	GetCourse(ctx context.Context, courseID int64) (*Course, error)
	CreateCourse(ctx context.Context, c *Course) (*Course, error)
	UserExists(ctx context.Context, userID int64) (bool, error)
	Enroll(ctx context.Context, userID, courseID int64) error
	InsertMessage(ctx context.Context, courseID, senderID int64, content string, now time.Time) (*Message, error)
	ListMessages(ctx context.Context, courseID int64) ([]Message, error)
}

type Publisher interface {
	Publish(ctx context.Context, group, event string, payload interface{}) error
}

type Service struct {
	store     Store
	publisher Publisher
	log       *zap.Logger
	now       func() time.Time
}

func NewService(store Store, publisher Publisher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, publisher: publisher, log: log, now: time.Now}
}

func (s *Service) ListCourses(ctx context.Context) ([]Course, error) {
	return s.store.ListCourses(ctx)
}

func (s *Service) ListForUser(ctx context.Context, userID int64) ([]Course, error) {
	return s.store.ListForUser(ctx, userID)
}

func (s *Service) CreateCourse(ctx context.Context, code, name, description string) (*Course, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	name = strings.TrimSpace(name)
	if code == "" || name == "" {
		return nil, apperr.Validation("code and name are required")
	}
	c, err := s.store.CreateCourse(ctx, &Course{Code: code, Name: name, Description: strings.TrimSpace(description)})
	if err != nil {
		return nil, err
	}
	s.log.Info("course created", zap.Int64("course_id", c.ID), zap.String("code", c.Code))
	return c, nil
}

func (s *Service) Enroll(ctx context.Context, userID, courseID int64) error {
	if userID <= 0 {
		return apperr.Validation("userId is required")
	}
	if _, err := s.store.GetCourse(ctx, courseID); err != nil {
		return err
	}
	exists, err := s.store.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return apperr.ErrNotFound
	}
	return s.store.Enroll(ctx, userID, courseID)
}

// SendMessage persists a course message and pushes it to everyone in the course group.
func (s *Service) SendMessage(ctx context.Context, courseID, senderID int64, content string) (*Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperr.Validation("content is required")
	}
	if !utf8.ValidString(content) || strings.ContainsRune(content, 0) {
		return nil, apperr.Validation("content must be valid UTF-8 text")
	}
	if senderID <= 0 {
		return nil, apperr.Validation("senderId is required")
	}
	if _, err := s.store.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}

	msg, err := s.store.InsertMessage(ctx, courseID, senderID, content, s.now().UTC().Truncate(time.Microsecond))
	if err != nil {
		return nil, err
	}
	metrics.MessagesSent.WithLabelValues(metrics.ChannelCourse).Inc()

	if s.publisher != nil {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := s.publisher.Publish(pubCtx, realtime.CourseGroup(courseID), realtime.EventReceiveCourseMessage, *msg); err != nil {
			s.log.Warn("course message publish failed", zap.Int64("course_id", courseID), zap.Error(err))
		}
	}
	return msg, nil
}

func (s *Service) ListMessages(ctx context.Context, courseID int64) ([]Message, error) {
	if _, err := s.store.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, courseID)
}
