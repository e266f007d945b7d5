package types

import "time"

// Post represents a top-level piece of user content.
// A post is only ever stored after its content passed moderation.
type Post struct {
	// ID is the unique identifier of the post, assigned on creation.
	ID int `json:"id" db:"id"`

	// Title is the human-readable headline of the post.
	Title string `json:"title" db:"title"`

	// Content is the moderated body of the post.
	Content string `json:"content" db:"content"`

	// Author is the username of the account that created the post.
	Author string `json:"author" db:"author"`

	// CreatedAt is the timestamp at which the post was stored.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// Comments lists the ids of comments attached to this post,
	// in attachment order.
	Comments []int `json:"comments" db:"comment_ids"`
}
