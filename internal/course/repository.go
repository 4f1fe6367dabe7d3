package course

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"campuschat/internal/apperr"
	"campuschat/internal/db"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const courseColumns = "id, code, name, description, created_at"

func (r *Repository) listCourses(ctx context.Context, query string, args ...any) ([]Course, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	defer rows.Close()

	courses := []Course{}
	for rows.Next() {
		var c Course
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Description, &c.CreatedAt); err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

func (r *Repository) ListCourses(ctx context.Context) ([]Course, error) {
	return r.listCourses(ctx, "SELECT "+courseColumns+" FROM courses ORDER BY code ASC")
}

func (r *Repository) ListForUser(ctx context.Context, userID int64) ([]Course, error) {
	return r.listCourses(ctx, `
		SELECT c.id, c.code, c.name, c.description, c.created_at
		FROM courses c
		JOIN enrollments e ON e.course_id = c.id
		WHERE e.user_id = $1
		ORDER BY c.code ASC`, userID)
}

func (r *Repository) GetCourse(ctx context.Context, courseID int64) (*Course, error) {
	c := &Course{}
	err := r.db.QueryRowContext(ctx, "SELECT "+courseColumns+" FROM courses WHERE id = $1", courseID).
		Scan(&c.ID, &c.Code, &c.Name, &c.Description, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("get course: %w", err)
	}
	return c, nil
}

func (r *Repository) CreateCourse(ctx context.Context, c *Course) (*Course, error) {
	err := r.db.QueryRowContext(ctx,
		"INSERT INTO courses (code, name, description) VALUES ($1, $2, $3) RETURNING id, created_at",
		c.Code, c.Name, c.Description,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, apperr.Precondition("course code already exists")
		}
		return nil, fmt.Errorf("create course: %w", err)
	}
	return c, nil
}

func (r *Repository) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)", userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return exists, nil
}

// Enroll is idempotent; enrolling twice leaves a single row.
func (r *Repository) Enroll(ctx context.Context, userID, courseID int64) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO enrollments (user_id, course_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		userID, courseID)
	if err != nil {
		return fmt.Errorf("enroll: %w", err)
	}
	return nil
}

func (r *Repository) InsertMessage(ctx context.Context, courseID, senderID int64, content string, now time.Time) (*Message, error) {
	m := &Message{CourseID: courseID, SenderID: senderID, Content: content, Timestamp: now}
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			"INSERT INTO course_messages (course_id, sender_id, content, created_at) VALUES ($1, $2, $3, $4) RETURNING id",
			courseID, senderID, content, now,
		).Scan(&m.ID)
		if err != nil {
			if db.IsForeignKeyViolation(err) {
				return apperr.ErrNotFound
			}
			return fmt.Errorf("insert course message: %w", err)
		}
		return tx.QueryRowContext(ctx,
			"SELECT COALESCE(NULLIF(name, ''), username), avatar_url FROM users WHERE id = $1", senderID,
		).Scan(&m.SenderName, &m.SenderAvatar)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *Repository) ListMessages(ctx context.Context, courseID int64) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.id, m.course_id, m.sender_id, COALESCE(NULLIF(u.name, ''), u.username), u.avatar_url,
		       m.content, m.created_at
		FROM course_messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.course_id = $1
		ORDER BY m.created_at ASC, m.id ASC`, courseID)
	if err != nil {
		return nil, fmt.Errorf("list course messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.CourseID, &m.SenderID, &m.SenderName, &m.SenderAvatar,
			&m.Content, &m.Timestamp); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
