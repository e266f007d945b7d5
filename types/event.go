package types

import "time"

// EventType names a change published to the event channel.
type EventType string

// Published event types.
const (
	EventPostCreated        EventType = "post.created"
	EventPostDeleted        EventType = "post.deleted"
	EventCommentCreated     EventType = "comment.created"
	EventCommentDeleted     EventType = "comment.deleted"
	EventCommentAutoReplied EventType = "comment.auto_replied"
)

// Event is the broker payload describing a stored or removed entity.
type Event struct {
	// Type identifies what happened.
	Type EventType `json:"type"`

	// ID is the post or comment id the event is about.
	ID int `json:"id"`

	// PostID is set for comment events.
	PostID int `json:"post_id,omitempty"`

	// ReplyTo is set for auto-reply events.
	ReplyTo int `json:"reply_to,omitempty"`

	// Author is the username responsible for the entity.
	Author string `json:"author,omitempty"`

	// OccurredAt is when the change happened.
	OccurredAt time.Time `json:"occurred_at"`
}

// Rejection is the archived record of a submission refused by moderation.
type Rejection struct {
	// Kind is "post" or "comment".
	Kind string `json:"kind"`

	// Author is the username that attempted the submission.
	Author string `json:"author"`

	// Title is set for posts only.
	Title string `json:"title,omitempty"`

	// PostID is set for comments only.
	PostID int `json:"post_id,omitempty"`

	// Content is the refused text.
	Content string `json:"content"`

	// RejectedAt is when the moderation verdict was received.
	RejectedAt time.Time `json:"rejected_at"`
}
