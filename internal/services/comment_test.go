package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/postmod/apiserver/internal/autoreply"
	"github.com/postmod/apiserver/internal/store"
	"github.com/postmod/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type commentFixture struct {
	repos     memoryRepos
	gate      *fakeGate
	pub       *fakePublisher
	objects   *fakeObjects
	scheduler *autoreply.Scheduler
	svc       *CommentService
}

func newCommentFixture(t *testing.T, offensive ...string) *commentFixture {
	t.Helper()
	f := &commentFixture{
		repos:   newMemoryRepos(),
		gate:    newFakeGate(offensive...),
		pub:     &fakePublisher{},
		objects: &fakeObjects{},
	}
	events := NewEventPublisher(f.pub, "events", discardLogger())
	replies := NewReplyStore(f.repos.comments, f.repos.posts, events, discardLogger())
	f.scheduler = autoreply.NewScheduler(replies.Store, "auto-replier", time.Second, discardLogger())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = f.scheduler.Shutdown(ctx)
	})

	f.svc = NewCommentService(CommentDeps{
		Comments: f.repos.comments,
		Posts:    f.repos.posts,
		Users:    f.repos.users,
		Gate:     f.gate,
		Replier:  f.scheduler,
		Events:   events,
		Archive:  NewRejectionArchive(f.objects, discardLogger()),
		Logger:   discardLogger(),
	})
	return f
}

func (f *commentFixture) addUser(t *testing.T, name string, enabled bool, delaySeconds int) {
	t.Helper()
	_, err := f.repos.users.Create(context.Background(), types.User{Username: name, PasswordHash: "x"})
	require.NoError(t, err)
	_, err = f.repos.users.UpdateAutoReply(context.Background(), name, enabled, delaySeconds)
	require.NoError(t, err)
}

func (f *commentFixture) count(t *testing.T) int {
	t.Helper()
	comments, err := f.repos.comments.List(context.Background())
	require.NoError(t, err)
	return len(comments)
}

func TestCommentService_AutoReplyWhenEnabled(t *testing.T) {
	ctx := context.Background()
	f := newCommentFixture(t)
	f.addUser(t, "alice", true, 0)
	post, err := f.repos.posts.Create(ctx, types.Post{Title: "t", Content: "c", Author: "alice"})
	require.NoError(t, err)

	comment, err := f.svc.Create(ctx, "alice", post.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, 1, comment.ID)
	assert.Equal(t, "alice", comment.Author)

	require.Eventually(t, func() bool { return f.count(t) == 2 }, 2*time.Second, 10*time.Millisecond)

	reply, err := f.repos.comments.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "auto-replier", reply.Author)
	assert.Equal(t, "Auto-reply to comment 'hello'", reply.Content)
	assert.Equal(t, post.ID, reply.PostID)
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, comment.ID, *reply.ReplyTo)
	assert.False(t, reply.IsBlocked)

	stored, err := f.repos.posts.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, stored.Comments)

	require.Eventually(t, func() bool { return len(f.pub.events(t)) == 2 }, time.Second, 10*time.Millisecond)
	events := f.pub.events(t)
	assert.Equal(t, types.EventCommentCreated, events[0].Type)
	assert.Equal(t, types.EventCommentAutoReplied, events[1].Type)
	assert.Equal(t, 1, events[1].ReplyTo)
}

// hangupComments cancels the request context right after the insert, the
// way a client disconnecting mid-request would.
type hangupComments struct {
	*store.MemoryCommentRepository
	cancel context.CancelFunc
}

func (h hangupComments) Create(ctx context.Context, comment types.Comment) (types.Comment, error) {
	stored, err := h.MemoryCommentRepository.Create(ctx, comment)
	h.cancel()
	return stored, err
}

// ctxUsers fails on a done context like a database/sql backed repository.
type ctxUsers struct {
	*store.MemoryUserRepository
}

func (u ctxUsers) GetByUsername(ctx context.Context, username string) (types.User, error) {
	if err := ctx.Err(); err != nil {
		return types.User{}, err
	}
	return u.MemoryUserRepository.GetByUsername(ctx, username)
}

func TestCommentService_AutoReplySurvivesClientDisconnect(t *testing.T) {
	f := newCommentFixture(t)
	f.addUser(t, "alice", true, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := NewCommentService(CommentDeps{
		Comments: hangupComments{MemoryCommentRepository: f.repos.comments, cancel: cancel},
		Posts:    f.repos.posts,
		Users:    ctxUsers{MemoryUserRepository: f.repos.users},
		Gate:     f.gate,
		Replier:  f.scheduler,
		Logger:   discardLogger(),
	})

	comment, err := svc.Create(ctx, "alice", 1, "hello")
	require.NoError(t, err)
	require.Error(t, ctx.Err())

	require.Eventually(t, func() bool { return f.count(t) == 2 }, 2*time.Second, 10*time.Millisecond)
	reply, err := f.repos.comments.Get(context.Background(), 2)
	require.NoError(t, err)
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, comment.ID, *reply.ReplyTo)
}

func TestCommentService_NoAutoReplyWhenDisabled(t *testing.T) {
	ctx := context.Background()
	f := newCommentFixture(t)
	f.addUser(t, "alice", false, 0)

	_, err := f.svc.Create(ctx, "alice", 1, "hello")
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, f.count(t))
	assert.Equal(t, 0, f.scheduler.Pending())
}

func TestCommentService_UsesCurrentPolicy(t *testing.T) {
	ctx := context.Background()
	f := newCommentFixture(t)
	f.addUser(t, "alice", true, 0)

	_, err := f.repos.users.UpdateAutoReply(ctx, "alice", false, 0)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, "alice", 1, "hello")
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, f.count(t))
}

func TestCommentService_RejectsOffensiveContent(t *testing.T) {
	ctx := context.Background()
	f := newCommentFixture(t, "fuck")
	f.addUser(t, "alice", true, 0)

	_, err := f.svc.Create(ctx, "alice", 1, "fuck")
	require.ErrorIs(t, err, ErrContentRejected)
	assert.Equal(t, 0, f.count(t))
	assert.Equal(t, 0, f.scheduler.Pending())

	require.Len(t, f.objects.puts, 1)
	assert.Contains(t, f.objects.puts[0].key, "rejections/comment/")
	var rejection types.Rejection
	f.objects.decode(t, 0, &rejection)
	assert.Equal(t, 1, rejection.PostID)
	assert.Equal(t, "fuck", rejection.Content)

	accepted, err := f.svc.Create(ctx, "alice", 1, "kind words")
	require.NoError(t, err)
	assert.Equal(t, 1, accepted.ID)
}

func TestCommentService_Validation(t *testing.T) {
	f := newCommentFixture(t)

	_, err := f.svc.Create(context.Background(), "alice", 0, "hello")
	require.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.Create(context.Background(), "alice", 1, "")
	require.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, f.gate.calls)
}

func TestCommentService_DeleteCancelsPendingReply(t *testing.T) {
	ctx := context.Background()
	f := newCommentFixture(t)
	f.addUser(t, "alice", true, 1)
	post, err := f.repos.posts.Create(ctx, types.Post{Title: "t", Content: "c"})
	require.NoError(t, err)

	comment, err := f.svc.Create(ctx, "alice", post.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, 1, f.scheduler.Pending())

	require.NoError(t, f.svc.Delete(ctx, comment.ID))
	assert.Equal(t, 0, f.scheduler.Pending())

	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, 0, f.count(t), "deleted comment must not receive a reply")

	stored, err := f.repos.posts.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Comments)

	require.ErrorIs(t, f.svc.Delete(ctx, comment.ID), store.ErrNotFound)
}

func TestCommentService_CommentOnMissingPost(t *testing.T) {
	ctx := context.Background()
	f := newCommentFixture(t)
	f.addUser(t, "alice", false, 0)

	comment, err := f.svc.Create(ctx, "alice", 42, "hello")
	require.NoError(t, err)
	assert.Equal(t, 42, comment.PostID)

	require.NoError(t, f.svc.Delete(ctx, comment.ID))
}

func TestCommentService_ConcurrentCreatesGetDistinctIDs(t *testing.T) {
	ctx := context.Background()
	f := newCommentFixture(t)

	const n = 50
	for i := 0; i < n; i++ {
		f.addUser(t, fmt.Sprintf("user%d", i), false, 0)
	}

	var wg sync.WaitGroup
	ids := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			comment, err := f.svc.Create(ctx, fmt.Sprintf("user%d", i), 1, "hello")
			assert.NoError(t, err)
			ids <- comment.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[int]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}
