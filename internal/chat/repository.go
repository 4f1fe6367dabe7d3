package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"campuschat/internal/apperr"
	"campuschat/internal/db"
	"campuschat/internal/user"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const chatColumns = "id, user_low_id, user_high_id, created_at, last_message_at"

func (r *Repository) scanChat(row *sql.Row) (*Chat, error) {
	c := &Chat{}
	if err := row.Scan(&c.ID, &c.UserLowID, &c.UserHighID, &c.CreatedAt, &c.LastMessageAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("scan chat: %w", err)
	}
	return c, nil
}

func (r *Repository) GetChat(ctx context.Context, chatID int64) (*Chat, error) {
	return r.scanChat(r.db.QueryRowContext(ctx, "SELECT "+chatColumns+" FROM chats WHERE id = $1", chatID))
}

func (r *Repository) FindChat(ctx context.Context, low, high int64) (*Chat, error) {
	return r.scanChat(r.db.QueryRowContext(ctx,
		"SELECT "+chatColumns+" FROM chats WHERE user_low_id = $1 AND user_high_id = $2", low, high))
}

// CreateChat inserts the pair or, when a concurrent request won the race, returns the existing row.
func (r *Repository) CreateChat(ctx context.Context, low, high int64, now time.Time) (*Chat, error) {
	query := `
		INSERT INTO chats (user_low_id, user_high_id, created_at, last_message_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (user_low_id, user_high_id) DO NOTHING
		RETURNING ` + chatColumns
	c, err := r.scanChat(r.db.QueryRowContext(ctx, query, low, high, now))
	if apperr.KindOf(err) == apperr.KindNotFound {
		return r.FindChat(ctx, low, high)
	}
	return c, err
}

func (r *Repository) DeleteChat(ctx context.Context, chatID int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM chats WHERE id = $1", chatID)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *Repository) Profile(ctx context.Context, userID int64) (user.PublicProfile, error) {
	var p user.PublicProfile
	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, username, avatar_url, major, year, bio FROM users WHERE id = $1", userID,
	).Scan(&p.ID, &p.Name, &p.Username, &p.AvatarURL, &p.Major, &p.Year, &p.Bio)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, apperr.ErrNotFound
		}
		return p, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (r *Repository) ListSummaries(ctx context.Context, userID int64) ([]Summary, error) {
	query := `
		SELECT c.id, c.created_at, c.last_message_at,
		       u.id, u.name, u.username, u.avatar_url, u.major, u.year, u.bio,
		       lm.content, lm.created_at, lm.sender_id,
		       (SELECT COUNT(*) FROM chat_messages m
		         WHERE m.chat_id = c.id AND m.sender_id <> $1 AND NOT m.is_read) AS unread
		FROM chats c
		JOIN users u ON u.id = CASE WHEN c.user_low_id = $1 THEN c.user_high_id ELSE c.user_low_id END
		LEFT JOIN LATERAL (
			SELECT m.content, m.created_at, m.sender_id
			FROM chat_messages m
			WHERE m.chat_id = c.id
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT 1
		) lm ON TRUE
		WHERE c.user_low_id = $1 OR c.user_high_id = $1
		ORDER BY c.last_message_at DESC, c.id DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var (
			s        Summary
			content  sql.NullString
			sentAt   sql.NullTime
			senderID sql.NullInt64
		)
		p := &s.OtherUser
		if err := rows.Scan(&s.ChatID, &s.CreatedAt, &s.LastMessageAt,
			&p.ID, &p.Name, &p.Username, &p.AvatarURL, &p.Major, &p.Year, &p.Bio,
			&content, &sentAt, &senderID, &s.UnreadCount); err != nil {
			return nil, err
		}
		if content.Valid {
			s.LastMessage = &LastMessage{
				Content:   content.String,
				Timestamp: sentAt.Time,
				IsFromMe:  senderID.Int64 == userID,
			}
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

const messageSelect = `
	SELECT m.id, m.chat_id, m.sender_id, COALESCE(NULLIF(u.name, ''), u.username), u.avatar_url,
	       m.content, m.created_at, m.is_read
	FROM chat_messages m
	JOIN users u ON u.id = m.sender_id
`

// MarkReadAndList flips the reader's unread messages and returns the chat history in one transaction.
func (r *Repository) MarkReadAndList(ctx context.Context, chatID, readerID int64) ([]Message, error) {
	messages := []Message{}
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"UPDATE chat_messages SET is_read = TRUE WHERE chat_id = $1 AND sender_id <> $2 AND NOT is_read",
			chatID, readerID)
		if err != nil {
			return fmt.Errorf("mark read: %w", err)
		}

		rows, err := tx.QueryContext(ctx, messageSelect+"WHERE m.chat_id = $1 ORDER BY m.created_at ASC, m.id ASC", chatID)
		if err != nil {
			return fmt.Errorf("list messages: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var m Message
			if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.SenderName, &m.SenderAvatar,
				&m.Content, &m.Timestamp, &m.IsRead); err != nil {
				return err
			}
			messages = append(messages, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// InsertMessage stores the message and moves the chat's last_message_at in the same transaction.
// last_message_at only moves forward, whatever order concurrent sends commit in.
func (r *Repository) InsertMessage(ctx context.Context, chatID, senderID int64, content string, now time.Time) (*Message, error) {
	m := &Message{ChatID: chatID, SenderID: senderID, Content: content, Timestamp: now}
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			"INSERT INTO chat_messages (chat_id, sender_id, content, created_at) VALUES ($1, $2, $3, $4) RETURNING id",
			chatID, senderID, content, now,
		).Scan(&m.ID)
		if err != nil {
			// The chat or the sender was deleted after the participant check.
			if db.IsForeignKeyViolation(err) {
				return apperr.ErrNotFound
			}
			return fmt.Errorf("insert message: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "UPDATE chats SET last_message_at = GREATEST(last_message_at, $2) WHERE id = $1", chatID, now); err != nil {
			return fmt.Errorf("touch chat: %w", err)
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
