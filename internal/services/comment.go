package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/postmod/apiserver/internal/autoreply"
	"github.com/postmod/apiserver/internal/metrics"
	"github.com/postmod/apiserver/internal/moderation"
	"github.com/postmod/apiserver/internal/store"
	"github.com/postmod/apiserver/types"
)

// CommentRepository defines persistence operations for comments.
type CommentRepository interface {
	List(ctx context.Context) ([]types.Comment, error)
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]types.Comment, error)
	Get(ctx context.Context, id int) (types.Comment, error)
	Create(ctx context.Context, comment types.Comment) (types.Comment, error)
	Delete(ctx context.Context, id int) error
}

// Replier schedules and cancels auto-replies.
type Replier interface {
	Schedule(origin types.Comment, delay time.Duration) (*autoreply.Job, error)
	Cancel(commentID int) bool
}

// CommentService encapsulates comment use-cases.
type CommentService struct {
	comments CommentRepository
	posts    PostRepository
	users    UserRepository
	gate     moderation.Gate
	replier  Replier
	events   *EventPublisher
	archive  *RejectionArchive
	logger   *slog.Logger
}

// CommentDeps groups the collaborators of a CommentService.
type CommentDeps struct {
	Comments CommentRepository
	Posts    PostRepository
	Users    UserRepository
	Gate     moderation.Gate
	Replier  Replier
	Events   *EventPublisher
	Archive  *RejectionArchive
	Logger   *slog.Logger
}

func NewCommentService(deps CommentDeps) *CommentService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CommentService{
		comments: deps.Comments,
		posts:    deps.Posts,
		users:    deps.Users,
		gate:     deps.Gate,
		replier:  deps.Replier,
		events:   deps.Events,
		archive:  deps.Archive,
		logger:   logger.With("component", "comments"),
	}
}

// Create moderates, stores and, when the author has auto-reply enabled,
// schedules a reply. It returns as soon as the comment is stored.
func (s *CommentService) Create(ctx context.Context, author string, postID int, content string) (types.Comment, error) {
	if postID < 1 {
		return types.Comment{}, fmt.Errorf("%w: post_id must be positive", ErrValidation)
	}
	if strings.TrimSpace(content) == "" {
		return types.Comment{}, fmt.Errorf("%w: content is required", ErrValidation)
	}

	offensive, err := s.gate.IsOffensive(ctx, content)
	if err != nil {
		metrics.Submissions.WithLabelValues(kindComment, metrics.ResultFailed).Inc()
		return types.Comment{}, err
	}
	if offensive {
		metrics.Submissions.WithLabelValues(kindComment, metrics.ResultRejected).Inc()
		s.logger.Info("comment rejected by moderation", "author", author, "post_id", postID)
		s.archive.Record(ctx, types.Rejection{
			Kind:       kindComment,
			Author:     author,
			PostID:     postID,
			Content:    content,
			RejectedAt: time.Now().UTC(),
		})
		return types.Comment{}, ErrContentRejected
	}

	comment, err := s.comments.Create(ctx, types.Comment{
		PostID:  postID,
		Author:  author,
		Content: content,
	})
	if err != nil {
		metrics.Submissions.WithLabelValues(kindComment, metrics.ResultFailed).Inc()
		return types.Comment{}, err
	}
	metrics.Submissions.WithLabelValues(kindComment, metrics.ResultAccepted).Inc()

	// The comment is stored; the follow-up work must outlive the request.
	ctx = context.WithoutCancel(ctx)
	attachToPost(ctx, s.posts, s.logger, comment)
	s.events.Emit(ctx, types.Event{
		Type:       types.EventCommentCreated,
		ID:         comment.ID,
		PostID:     comment.PostID,
		Author:     comment.Author,
		OccurredAt: comment.CreatedAt,
	})

	s.scheduleReply(ctx, comment)
	return comment, nil
}

// scheduleReply reads the author's current policy and hands the comment
// to the replier. Failures never affect the stored comment.
func (s *CommentService) scheduleReply(ctx context.Context, comment types.Comment) {
	if s.replier == nil {
		return
	}

	user, err := s.users.GetByUsername(ctx, comment.Author)
	if err != nil {
		s.logger.Warn("load auto-reply policy", "author", comment.Author, "error", err)
		return
	}
	if !user.AutoReplyEnabled {
		return
	}

	delay := time.Duration(user.ReplyDelaySeconds) * time.Second
	if _, err := s.replier.Schedule(comment, delay); err != nil {
		s.logger.Warn("schedule auto-reply", "comment_id", comment.ID, "error", err)
		return
	}

	// A delete may have slipped in between storing and scheduling.
	if _, err := s.comments.Get(ctx, comment.ID); errors.Is(err, store.ErrNotFound) {
		s.replier.Cancel(comment.ID)
	}
}

func (s *CommentService) List(ctx context.Context) ([]types.Comment, error) {
	return s.comments.List(ctx)
}

func (s *CommentService) Get(ctx context.Context, id int) (types.Comment, error) {
	return s.comments.Get(ctx, id)
}

// Delete removes the comment and cancels its pending auto-reply.
func (s *CommentService) Delete(ctx context.Context, id int) error {
	comment, err := s.comments.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.comments.Delete(ctx, id); err != nil {
		return err
	}

	if s.replier != nil && s.replier.Cancel(id) {
		s.logger.Info("pending auto-reply cancelled", "comment_id", id)
	}
	if err := s.posts.DetachComment(ctx, comment.PostID, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("detach comment from post", "comment_id", id, "post_id", comment.PostID, "error", err)
	}

	s.events.Emit(ctx, types.Event{
		Type:       types.EventCommentDeleted,
		ID:         id,
		PostID:     comment.PostID,
		Author:     comment.Author,
		OccurredAt: time.Now().UTC(),
	})
	return nil
}

// ReplyStore persists replies produced by the auto-reply scheduler.
type ReplyStore struct {
	comments CommentRepository
	posts    PostRepository
	events   *EventPublisher
	logger   *slog.Logger
}

func NewReplyStore(comments CommentRepository, posts PostRepository, events *EventPublisher, logger *slog.Logger) *ReplyStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReplyStore{
		comments: comments,
		posts:    posts,
		events:   events,
		logger:   logger.With("component", "replies"),
	}
}

// Store has the signature of autoreply.PersistFunc.
func (r *ReplyStore) Store(ctx context.Context, reply types.Comment) (types.Comment, error) {
	stored, err := r.comments.Create(ctx, reply)
	if err != nil {
		return types.Comment{}, err
	}
	attachToPost(ctx, r.posts, r.logger, stored)

	event := types.Event{
		Type:       types.EventCommentAutoReplied,
		ID:         stored.ID,
		PostID:     stored.PostID,
		Author:     stored.Author,
		OccurredAt: stored.CreatedAt,
	}
	if stored.ReplyTo != nil {
		event.ReplyTo = *stored.ReplyTo
	}
	r.events.Emit(ctx, event)
	return stored, nil
}

// attachToPost links a stored comment to its post. Comments may point at
// posts that do not exist.
func attachToPost(ctx context.Context, posts PostRepository, logger *slog.Logger, comment types.Comment) {
	err := posts.AttachComment(ctx, comment.PostID, comment.ID)
	if err == nil || errors.Is(err, store.ErrNotFound) {
		return
	}
	logger.Warn("attach comment to post", "comment_id", comment.ID, "post_id", comment.PostID, "error", err)
}
