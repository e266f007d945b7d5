package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/postmod/apiserver/types"
)

// MemoryUserRepository keeps users in a map keyed by username.
// Every read returns a copy, so callers never observe a partially
// applied policy update.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]types.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]types.User)}
}

func (r *MemoryUserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[username]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

func (r *MemoryUserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.Username]; exists {
		return types.User{}, ErrConflict
	}

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.Username] = user
	return user, nil
}

func (r *MemoryUserRepository) UpdateAutoReply(ctx context.Context, username string, enabled bool, delaySeconds int) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[username]
	if !ok {
		return types.User{}, ErrNotFound
	}
	user.AutoReplyEnabled = enabled
	user.ReplyDelaySeconds = delaySeconds
	user.UpdatedAt = time.Now().UTC()
	r.users[username] = user
	return user, nil
}

// MemoryPostRepository keeps posts in insertion order.
type MemoryPostRepository struct {
	mu     sync.RWMutex
	posts  []types.Post
	nextID int
}

func NewMemoryPostRepository() *MemoryPostRepository {
	return &MemoryPostRepository{nextID: 1}
}

func (r *MemoryPostRepository) List(ctx context.Context) ([]types.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	posts := make([]types.Post, len(r.posts))
	for i, post := range r.posts {
		posts[i] = clonePost(post)
	}
	return posts, nil
}

func (r *MemoryPostRepository) Get(ctx context.Context, id int) (types.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := r.indexLocked(id)
	if idx < 0 {
		return types.Post{}, ErrNotFound
	}
	return clonePost(r.posts[idx]), nil
}

// Create assigns the next id under the same lock that appends the post.
func (r *MemoryPostRepository) Create(ctx context.Context, post types.Post) (types.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	post.ID = r.nextID
	r.nextID++
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}
	if post.Comments == nil {
		post.Comments = []int{}
	}
	post = clonePost(post)
	r.posts = append(r.posts, post)
	return clonePost(post), nil
}

func (r *MemoryPostRepository) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(id)
	if idx < 0 {
		return ErrNotFound
	}
	r.posts = slices.Delete(r.posts, idx, idx+1)
	return nil
}

func (r *MemoryPostRepository) AttachComment(ctx context.Context, postID, commentID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(postID)
	if idx < 0 {
		return ErrNotFound
	}
	if !slices.Contains(r.posts[idx].Comments, commentID) {
		r.posts[idx].Comments = append(r.posts[idx].Comments, commentID)
	}
	return nil
}

func (r *MemoryPostRepository) DetachComment(ctx context.Context, postID, commentID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(postID)
	if idx < 0 {
		return ErrNotFound
	}
	r.posts[idx].Comments = slices.DeleteFunc(r.posts[idx].Comments, func(id int) bool {
		return id == commentID
	})
	return nil
}

func (r *MemoryPostRepository) indexLocked(id int) int {
	return slices.IndexFunc(r.posts, func(p types.Post) bool { return p.ID == id })
}

func clonePost(post types.Post) types.Post {
	post.Comments = slices.Clone(post.Comments)
	if post.Comments == nil {
		post.Comments = []int{}
	}
	return post
}

// MemoryCommentRepository keeps comments in insertion order.
type MemoryCommentRepository struct {
	mu       sync.RWMutex
	comments []types.Comment
	nextID   int
}

func NewMemoryCommentRepository() *MemoryCommentRepository {
	return &MemoryCommentRepository{nextID: 1}
}

func (r *MemoryCommentRepository) List(ctx context.Context) ([]types.Comment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	comments := make([]types.Comment, len(r.comments))
	for i, comment := range r.comments {
		comments[i] = cloneComment(comment)
	}
	return comments, nil
}

func (r *MemoryCommentRepository) Get(ctx context.Context, id int) (types.Comment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := r.indexLocked(id)
	if idx < 0 {
		return types.Comment{}, ErrNotFound
	}
	return cloneComment(r.comments[idx]), nil
}

// Create assigns the next id under the same lock that appends the comment.
func (r *MemoryCommentRepository) Create(ctx context.Context, comment types.Comment) (types.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	comment.ID = r.nextID
	r.nextID++
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}
	comment = cloneComment(comment)
	r.comments = append(r.comments, comment)
	return cloneComment(comment), nil
}

func (r *MemoryCommentRepository) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(id)
	if idx < 0 {
		return ErrNotFound
	}
	r.comments = slices.Delete(r.comments, idx, idx+1)
	return nil
}

// ListCreatedBetween returns comments with from <= created_at < to.
func (r *MemoryCommentRepository) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]types.Comment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var comments []types.Comment
	for _, comment := range r.comments {
		if comment.CreatedAt.Before(from) || !comment.CreatedAt.Before(to) {
			continue
		}
		comments = append(comments, cloneComment(comment))
	}
	return comments, nil
}

func (r *MemoryCommentRepository) indexLocked(id int) int {
	return slices.IndexFunc(r.comments, func(c types.Comment) bool { return c.ID == id })
}

func cloneComment(comment types.Comment) types.Comment {
	if comment.ReplyTo != nil {
		replyTo := *comment.ReplyTo
		comment.ReplyTo = &replyTo
	}
	return comment
}
