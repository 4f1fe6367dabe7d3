package connection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

func (r *Repository) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)", userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("user exists: %w", err)
	}
	return exists, nil
}

// Create relies on connections_pair_idx: a concurrent duplicate loses with a unique violation.
func (r *Repository) Create(ctx context.Context, requesterID, receiverID int64) (*Connection, error) {
	c := &Connection{RequesterID: requesterID, ReceiverID: receiverID, Status: StatusPending}
	query := `
		INSERT INTO connections (requester_id, receiver_id, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, requesterID, receiverID, string(StatusPending)).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, errAlreadyExists
		}
		return nil, fmt.Errorf("create connection: %w", err)
	}
	return c, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (*Connection, error) {
	return r.scanOne(ctx, "WHERE id = $1", id)
}

func (r *Repository) FindBetween(ctx context.Context, a, b int64) (*Connection, error) {
	return r.scanOne(ctx, "WHERE LEAST(requester_id, receiver_id) = LEAST($1::bigint, $2::bigint) AND GREATEST(requester_id, receiver_id) = GREATEST($1::bigint, $2::bigint)", a, b)
}

func (r *Repository) scanOne(ctx context.Context, where string, args ...any) (*Connection, error) {
	c := &Connection{}
	query := "SELECT id, requester_id, receiver_id, status, created_at, updated_at FROM connections " + where
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&c.ID, &c.RequesterID, &c.ReceiverID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("get connection: %w", err)
	}
	return c, nil
}

func (r *Repository) SetStatus(ctx context.Context, id int64, status Status) error {
	res, err := r.db.ExecContext(ctx, "UPDATE connections SET status = $2, updated_at = NOW() WHERE id = $1", id, string(status))
	if err != nil {
		return fmt.Errorf("update connection: %w", err)
	}
	return requireRow(res)
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM connections WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	return requireRow(res)
}

func (r *Repository) AreConnected(ctx context.Context, a, b int64) (bool, error) {
	var ok bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM connections
			WHERE status = 'accepted'
			  AND ((requester_id = $1 AND receiver_id = $2) OR (requester_id = $2 AND receiver_id = $1))
		)`
	if err := r.db.QueryRowContext(ctx, query, a, b).Scan(&ok); err != nil {
		return false, fmt.Errorf("are connected: %w", err)
	}
	return ok, nil
}

const entrySelect = `
	SELECT c.id, c.status, c.requester_id, c.created_at,
	       u.id, u.name, u.username, u.avatar_url, u.major, u.year, u.bio
	FROM connections c
	JOIN users u ON u.id = CASE WHEN c.requester_id = $1 THEN c.receiver_id ELSE c.requester_id END
`

func (r *Repository) ListAccepted(ctx context.Context, userID int64) ([]Entry, error) {
	return r.listEntries(ctx, entrySelect+`
		WHERE c.status = 'accepted' AND (c.requester_id = $1 OR c.receiver_id = $1)
		ORDER BY u.name, u.username`, userID)
}

func (r *Repository) ListPending(ctx context.Context, userID int64) ([]Entry, error) {
	return r.listEntries(ctx, entrySelect+`
		WHERE c.status = 'pending' AND c.receiver_id = $1
		ORDER BY c.created_at DESC, c.id DESC`, userID)
}

func (r *Repository) ListSent(ctx context.Context, userID int64) ([]Entry, error) {
	return r.listEntries(ctx, entrySelect+`
		WHERE c.status = 'pending' AND c.requester_id = $1
		ORDER BY c.created_at DESC, c.id DESC`, userID)
}

func (r *Repository) listEntries(ctx context.Context, query string, userID int64) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		p := &e.User
		if err := rows.Scan(&e.ConnectionID, &e.Status, &e.RequesterID, &e.RequestedAt,
			&p.ID, &p.Name, &p.Username, &p.AvatarURL, &p.Major, &p.Year, &p.Bio); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListSuggestions returns every user except userID and anyone already linked to them in any status.
func (r *Repository) ListSuggestions(ctx context.Context, userID int64) ([]user.PublicProfile, error) {
	query := `
		SELECT u.id, u.name, u.username, u.avatar_url, u.major, u.year, u.bio
		FROM users u
		WHERE u.id <> $1
		  AND NOT EXISTS (
			SELECT 1 FROM connections c
			WHERE (c.requester_id = $1 AND c.receiver_id = u.id)
			   OR (c.receiver_id = $1 AND c.requester_id = u.id)
		  )
		ORDER BY u.id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	defer rows.Close()

	profiles := []user.PublicProfile{}
	for rows.Next() {
		var p user.PublicProfile
		if err := rows.Scan(&p.ID, &p.Name, &p.Username, &p.AvatarURL, &p.Major, &p.Year, &p.Bio); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
