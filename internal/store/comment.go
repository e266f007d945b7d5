package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/postmod/apiserver/types"
)

// CommentRepository handles persistence for comments.
type CommentRepository struct {
	db *sql.DB
}

func NewCommentRepository(db *sql.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

const commentColumns = `id, post_id, reply_to, author, content, created_at, is_blocked`

func (r *CommentRepository) List(ctx context.Context) ([]types.Comment, error) {
	const query = `SELECT ` + commentColumns + ` FROM comments ORDER BY id`
	return r.query(ctx, query)
}

// ListCreatedBetween returns comments with from <= created_at < to.
func (r *CommentRepository) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]types.Comment, error) {
	const query = `
		SELECT ` + commentColumns + `
		FROM comments
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at, id`
	return r.query(ctx, query, from, to)
}

func (r *CommentRepository) Get(ctx context.Context, id int) (types.Comment, error) {
	const query = `SELECT ` + commentColumns + ` FROM comments WHERE id = $1`
	comment, err := scanComment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Comment{}, ErrNotFound
		}
		return types.Comment{}, err
	}
	return comment, nil
}

func (r *CommentRepository) Create(ctx context.Context, comment types.Comment) (types.Comment, error) {
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}

	var replyTo sql.NullInt64
	if comment.ReplyTo != nil {
		replyTo = sql.NullInt64{Int64: int64(*comment.ReplyTo), Valid: true}
	}

	const query = `
		INSERT INTO comments (post_id, reply_to, author, content, created_at, is_blocked)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		comment.PostID,
		replyTo,
		comment.Author,
		comment.Content,
		comment.CreatedAt,
		comment.IsBlocked,
	).Scan(&comment.ID); err != nil {
		return types.Comment{}, err
	}
	return comment, nil
}

func (r *CommentRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM comments WHERE id = $1`
	return execAffectingOne(ctx, r.db, query, id)
}

func (r *CommentRepository) query(ctx context.Context, query string, args ...any) ([]types.Comment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := make([]types.Comment, 0)
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return comments, nil
}

func scanComment(row rowScanner) (types.Comment, error) {
	var comment types.Comment
	var replyTo sql.NullInt64
	if err := row.Scan(
		&comment.ID,
		&comment.PostID,
		&replyTo,
		&comment.Author,
		&comment.Content,
		&comment.CreatedAt,
		&comment.IsBlocked,
	); err != nil {
		return types.Comment{}, err
	}
	if replyTo.Valid {
		id := int(replyTo.Int64)
		comment.ReplyTo = &id
	}
	return comment, nil
}
