package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/postmod/apiserver/types"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	const query = `
		SELECT username, password_hash, auto_reply_enabled, reply_delay_seconds, created_at, updated_at
		FROM users
		WHERE username = $1`
	var user types.User
	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&user.Username,
		&user.PasswordHash,
		&user.AutoReplyEnabled,
		&user.ReplyDelaySeconds,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (username, password_hash, auto_reply_enabled, reply_delay_seconds, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		user.Username,
		user.PasswordHash,
		user.AutoReplyEnabled,
		user.ReplyDelaySeconds,
		user.CreatedAt,
		user.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return types.User{}, ErrConflict
		}
		return types.User{}, err
	}
	return user, nil
}

// UpdateAutoReply changes both policy fields in a single statement.
func (r *UserRepository) UpdateAutoReply(ctx context.Context, username string, enabled bool, delaySeconds int) (types.User, error) {
	const query = `
		UPDATE users
		SET auto_reply_enabled = $1,
			reply_delay_seconds = $2,
			updated_at = $3
		WHERE username = $4
		RETURNING username, password_hash, auto_reply_enabled, reply_delay_seconds, created_at, updated_at`
	var user types.User
	err := r.db.QueryRowContext(ctx, query, enabled, delaySeconds, time.Now().UTC(), username).Scan(
		&user.Username,
		&user.PasswordHash,
		&user.AutoReplyEnabled,
		&user.ReplyDelaySeconds,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}
