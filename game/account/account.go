// Package account holds the user directory and friendship graph consulted by
// matchmaking and invitations.
package account

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/wricardo/mcp-training/gridduel/game/gameerr"
	"github.com/wricardo/mcp-training/gridduel/game/storage"
)

// Directory resolves user ids to display names.
type Directory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// Friendships answers whether two users are friends.
type Friendships interface {
	AreFriends(ctx context.Context, a, b string) (bool, error)
}

// User is a registered player.
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store implements Directory and Friendships on the shared SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore wraps a database opened with storage.Open.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// CreateUser registers a user. Ids are unique.
func (s *Store) CreateUser(ctx context.Context, id, displayName string) (*User, error) {
	id, displayName = strings.TrimSpace(id), strings.TrimSpace(displayName)
	if id == "" {
		return nil, gameerr.New(gameerr.CodeInvalidInput, "user id is required")
	}
	if displayName == "" {
		displayName = id
	}

	u := &User{ID: id, DisplayName: displayName, CreatedAt: s.now().UTC()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, display_name, created_at) VALUES (?, ?, ?)`,
		u.ID, u.DisplayName, storage.ToMillis(u.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, gameerr.Newf(gameerr.CodeAlreadyExists, "user %s already exists", id)
		}
		return nil, gameerr.Wrap(gameerr.CodeStoreUnavailable, "user store unavailable", err)
	}
	return u, nil
}

// GetUser looks up a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	var (
		u         User
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.DisplayName, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gameerr.Newf(gameerr.CodeUserNotFound, "user %s not found", id)
	}
	if err != nil {
		return nil, gameerr.Wrap(gameerr.CodeStoreUnavailable, "user store unavailable", err)
	}
	u.CreatedAt = storage.FromMillis(createdAt)
	return &u, nil
}

// DisplayName returns the user's display name, or the id itself for users
// that never registered.
func (s *Store) DisplayName(ctx context.Context, userID string) (string, error) {
	u, err := s.GetUser(ctx, userID)
	if errors.Is(err, gameerr.ErrUserNotFound) {
		return userID, nil
	}
	if err != nil {
		return "", err
	}
	return u.DisplayName, nil
}

// AddFriendship records a symmetric edge between two registered users.
// Adding an existing edge is a no-op.
func (s *Store) AddFriendship(ctx context.Context, a, b string) error {
	if a == b {
		return gameerr.New(gameerr.CodeInvalidInput, "users cannot befriend themselves")
	}
	for _, id := range []string{a, b} {
		if _, err := s.GetUser(ctx, id); err != nil {
			return err
		}
	}

	lo, hi := orderPair(a, b)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO friendships (user_a, user_b, created_at) VALUES (?, ?, ?)`,
		lo, hi, storage.ToMillis(s.now()))
	if err != nil {
		return gameerr.Wrap(gameerr.CodeStoreUnavailable, "user store unavailable", err)
	}
	return nil
}

func (s *Store) AreFriends(ctx context.Context, a, b string) (bool, error) {
	lo, hi := orderPair(a, b)
	var found int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM friendships WHERE user_a = ? AND user_b = ?`, lo, hi,
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, gameerr.Wrap(gameerr.CodeStoreUnavailable, "user store unavailable", err)
	}
	return true, nil
}

// Friends lists the ids of a user's friends in ascending order.
func (s *Store) Friends(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT user_b FROM friendships WHERE user_a = ?
UNION
SELECT user_a FROM friendships WHERE user_b = ?
ORDER BY 1`, userID, userID)
	if err != nil {
		return nil, gameerr.Wrap(gameerr.CodeStoreUnavailable, "user store unavailable", err)
	}
	defer rows.Close()

	var friends []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, gameerr.Wrap(gameerr.CodeStoreUnavailable, "user store unavailable", err)
		}
		friends = append(friends, id)
	}
	if err := rows.Err(); err != nil {
		return nil, gameerr.Wrap(gameerr.CodeStoreUnavailable, "user store unavailable", err)
	}
	return friends, nil
}

func orderPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "constraint failed: users.id")
}
