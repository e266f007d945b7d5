package services

import (
	"context"
	"fmt"

	"github.com/postmod/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	// UpdateAutoReply must apply both fields atomically.
	UpdateAutoReply(ctx context.Context, username string, enabled bool, delaySeconds int) (types.User, error)
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return s.repo.GetByUsername(ctx, username)
}

// UpdateAutoReplyConfig replaces the user's auto-reply policy.
func (s *UserService) UpdateAutoReplyConfig(ctx context.Context, username string, enabled bool, delaySeconds int) (types.User, error) {
	if delaySeconds < 0 {
		return types.User{}, fmt.Errorf("%w: delay_seconds must not be negative", ErrValidation)
	}
	return s.repo.UpdateAutoReply(ctx, username, enabled, delaySeconds)
}
