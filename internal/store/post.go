package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/postmod/apiserver/types"
)

// PostRepository handles persistence for posts.
type PostRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) *PostRepository {
	return &PostRepository{db: db}
}

func (r *PostRepository) List(ctx context.Context) ([]types.Post, error) {
	const query = `
		SELECT id, title, content, author, created_at, comment_ids
		FROM posts
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := make([]types.Post, 0)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *PostRepository) Get(ctx context.Context, id int) (types.Post, error) {
	const query = `
		SELECT id, title, content, author, created_at, comment_ids
		FROM posts
		WHERE id = $1`
	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Post{}, ErrNotFound
		}
		return types.Post{}, err
	}
	return post, nil
}

func (r *PostRepository) Create(ctx context.Context, post types.Post) (types.Post, error) {
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}
	post.Comments = []int{}

	const query = `
		INSERT INTO posts (title, content, author, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		post.Title,
		post.Content,
		post.Author,
		post.CreatedAt,
	).Scan(&post.ID); err != nil {
		return types.Post{}, err
	}
	return post, nil
}

func (r *PostRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM posts WHERE id = $1`
	return execAffectingOne(ctx, r.db, query, id)
}

func (r *PostRepository) AttachComment(ctx context.Context, postID, commentID int) error {
	const query = `
		UPDATE posts
		SET comment_ids = array_append(comment_ids, $1)
		WHERE id = $2 AND NOT ($1 = ANY(comment_ids))`
	result, err := r.db.ExecContext(ctx, query, commentID, postID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Either the post is gone or the comment is already attached.
		if _, err := r.Get(ctx, postID); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostRepository) DetachComment(ctx context.Context, postID, commentID int) error {
	const query = `
		UPDATE posts
		SET comment_ids = array_remove(comment_ids, $1)
		WHERE id = $2`
	return execAffectingOne(ctx, r.db, query, commentID, postID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (types.Post, error) {
	var post types.Post
	var commentIDs pq.Int64Array
	if err := row.Scan(
		&post.ID,
		&post.Title,
		&post.Content,
		&post.Author,
		&post.CreatedAt,
		&commentIDs,
	); err != nil {
		return types.Post{}, err
	}
	post.Comments = make([]int, len(commentIDs))
	for i, id := range commentIDs {
		post.Comments[i] = int(id)
	}
	return post, nil
}

func execAffectingOne(ctx context.Context, db *sql.DB, query string, args ...any) error {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
