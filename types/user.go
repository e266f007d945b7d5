package types

import "time"

// DefaultReplyDelaySeconds is the auto-reply delay assigned at registration.
const DefaultReplyDelaySeconds = 5

// User represents an account in the system.
// It carries the credential used for login and the account's
// auto-reply policy.
type User struct {
	// Username is the unique login name chosen by the user. It is the
	// record key and never changes after registration.
	Username string `json:"username" db:"username"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// AutoReplyEnabled reports whether accepted comments by this user
	// trigger a deferred system reply.
	AutoReplyEnabled bool `json:"auto_reply_enabled" db:"auto_reply_enabled"`

	// ReplyDelaySeconds is how long the system waits after an accepted
	// comment before posting the auto-reply. Always >= 0.
	ReplyDelaySeconds int `json:"reply_delay_seconds" db:"reply_delay_seconds"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
