package types

import "time"

// Comment represents a reply attached to a post, written either by a
// user or by the auto-reply system.
type Comment struct {
	// ID is the unique identifier of the comment, assigned on creation.
	ID int `json:"id" db:"id"`

	// PostID identifies the post this comment was written for. The post
	// is not required to exist.
	PostID int `json:"post_id" db:"post_id"`

	// ReplyTo references the comment that triggered an auto-reply.
	// Nil for comments written by users.
	ReplyTo *int `json:"reply_to,omitempty" db:"reply_to"`

	// Author is the username of the writer, or the system identity for
	// auto-replies.
	Author string `json:"author" db:"author"`

	// Content is the body of the comment.
	Content string `json:"content" db:"content"`

	// CreatedAt is the timestamp at which the comment was stored.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// IsBlocked marks comments hidden by a later moderation review.
	// The submission pipeline never stores a blocked comment.
	IsBlocked bool `json:"is_blocked" db:"is_blocked"`
}
