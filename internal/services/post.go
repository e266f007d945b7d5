package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/postmod/apiserver/internal/metrics"
	"github.com/postmod/apiserver/internal/moderation"
	"github.com/postmod/apiserver/types"
)

const (
	kindPost    = "post"
	kindComment = "comment"
)

// PostRepository defines persistence operations for posts.
type PostRepository interface {
	List(ctx context.Context) ([]types.Post, error)
	Get(ctx context.Context, id int) (types.Post, error)
	Create(ctx context.Context, post types.Post) (types.Post, error)
	Delete(ctx context.Context, id int) error
	AttachComment(ctx context.Context, postID, commentID int) error
	DetachComment(ctx context.Context, postID, commentID int) error
}

// PostService encapsulates post use-cases.
type PostService struct {
	posts   PostRepository
	gate    moderation.Gate
	events  *EventPublisher
	archive *RejectionArchive
	logger  *slog.Logger
}

func NewPostService(posts PostRepository, gate moderation.Gate, events *EventPublisher, archive *RejectionArchive, logger *slog.Logger) *PostService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostService{
		posts:   posts,
		gate:    gate,
		events:  events,
		archive: archive,
		logger:  logger.With("component", "posts"),
	}
}

// Create moderates content and stores the post. The id is assigned only
// once the content has been accepted.
func (s *PostService) Create(ctx context.Context, author, title, content string) (types.Post, error) {
	if strings.TrimSpace(title) == "" || strings.TrimSpace(content) == "" {
		return types.Post{}, fmt.Errorf("%w: title and content are required", ErrValidation)
	}

	offensive, err := s.gate.IsOffensive(ctx, content)
	if err != nil {
		metrics.Submissions.WithLabelValues(kindPost, metrics.ResultFailed).Inc()
		return types.Post{}, err
	}
	if offensive {
		metrics.Submissions.WithLabelValues(kindPost, metrics.ResultRejected).Inc()
		s.logger.Info("post rejected by moderation", "author", author)
		s.archive.Record(ctx, types.Rejection{
			Kind:       kindPost,
			Author:     author,
			Title:      title,
			Content:    content,
			RejectedAt: time.Now().UTC(),
		})
		return types.Post{}, ErrContentRejected
	}

	post, err := s.posts.Create(ctx, types.Post{
		Title:   title,
		Content: content,
		Author:  author,
	})
	if err != nil {
		metrics.Submissions.WithLabelValues(kindPost, metrics.ResultFailed).Inc()
		return types.Post{}, err
	}
	metrics.Submissions.WithLabelValues(kindPost, metrics.ResultAccepted).Inc()

	s.events.Emit(ctx, types.Event{
		Type:       types.EventPostCreated,
		ID:         post.ID,
		Author:     post.Author,
		OccurredAt: post.CreatedAt,
	})
	return post, nil
}

func (s *PostService) List(ctx context.Context) ([]types.Post, error) {
	return s.posts.List(ctx)
}

func (s *PostService) Get(ctx context.Context, id int) (types.Post, error) {
	return s.posts.Get(ctx, id)
}

func (s *PostService) Delete(ctx context.Context, id int) error {
	post, err := s.posts.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.posts.Delete(ctx, id); err != nil {
		return err
	}
	s.events.Emit(ctx, types.Event{
		Type:       types.EventPostDeleted,
		ID:         id,
		Author:     post.Author,
		OccurredAt: time.Now().UTC(),
	})
	return nil
}
