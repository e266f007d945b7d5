package services

import "errors"

var (
	// ErrInvalidCredentials is returned when a username/password pair does
	// not match a stored user.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken covers every access token failure: bad signature,
	// wrong algorithm, expiry, revocation and unknown subject.
	ErrInvalidToken = errors.New("invalid token")

	// ErrContentRejected is returned when moderation flags a submission.
	ErrContentRejected = errors.New("content rejected by moderation")

	// ErrValidation wraps malformed input.
	ErrValidation = errors.New("validation failed")
)
