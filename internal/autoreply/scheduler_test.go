package autoreply

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/postmod/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	replies []types.Comment
	err     error
}

func (r *recorder) persist(ctx context.Context, reply types.Comment) (types.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return types.Comment{}, r.err
	}
	reply.ID = 100 + len(r.replies)
	r.replies = append(r.replies, reply)
	return reply, nil
}

func (r *recorder) stored() []types.Comment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Comment(nil), r.replies...)
}

func newScheduler(rec *recorder) *Scheduler {
	return NewScheduler(rec.persist, "auto-replier", time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func waitDone(t *testing.T, job *Job) {
	t.Helper()
	select {
	case <-job.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("job for comment %d did not finish", job.CommentID)
	}
}

func TestCompose(t *testing.T) {
	at := time.Date(2024, 10, 20, 12, 0, 0, 0, time.FixedZone("x", 3600))
	reply := Compose(types.Comment{ID: 3, PostID: 1, Author: "alice", Content: "hello"}, "auto-replier", at)

	assert.Equal(t, 1, reply.PostID)
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, 3, *reply.ReplyTo)
	assert.Equal(t, "auto-replier", reply.Author)
	assert.Equal(t, "Auto-reply to comment 'hello'", reply.Content)
	assert.Equal(t, at.UTC(), reply.CreatedAt)
	assert.False(t, reply.IsBlocked)
	assert.Zero(t, reply.ID)
}

func TestScheduler_FiresAfterDelay(t *testing.T) {
	rec := &recorder{}
	s := newScheduler(rec)

	start := time.Now()
	job, err := s.Schedule(types.Comment{ID: 1, PostID: 1, Content: "hello"}, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, StateScheduled, job.State())
	assert.Equal(t, 1, s.Pending())
	assert.Empty(t, rec.stored())

	waitDone(t, job)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, StateCompleted, job.State())
	assert.Equal(t, 0, s.Pending())

	replies := rec.stored()
	require.Len(t, replies, 1)
	assert.Equal(t, "Auto-reply to comment 'hello'", replies[0].Content)
	assert.Equal(t, "auto-replier", replies[0].Author)

	reply, ok := job.Reply()
	require.True(t, ok)
	assert.Equal(t, replies[0].ID, reply.ID)
}

func TestScheduler_CancelPreventsReply(t *testing.T) {
	rec := &recorder{}
	s := newScheduler(rec)

	job, err := s.Schedule(types.Comment{ID: 7, PostID: 1, Content: "hello"}, 50*time.Millisecond)
	require.NoError(t, err)

	assert.True(t, s.Cancel(7))
	assert.False(t, s.Cancel(7), "second cancel finds nothing")
	waitDone(t, job)
	assert.Equal(t, StateCancelled, job.State())

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, rec.stored())
	assert.Equal(t, 0, s.Pending())
}

func TestScheduler_CancelAfterFireIsNoop(t *testing.T) {
	rec := &recorder{}
	s := newScheduler(rec)

	job, err := s.Schedule(types.Comment{ID: 2, PostID: 1, Content: "hi"}, 0)
	require.NoError(t, err)
	waitDone(t, job)

	assert.False(t, s.Cancel(2))
	assert.Equal(t, StateCompleted, job.State())
	assert.Len(t, rec.stored(), 1)
}

func TestScheduler_RescheduleReplacesPendingJob(t *testing.T) {
	rec := &recorder{}
	s := newScheduler(rec)

	first, err := s.Schedule(types.Comment{ID: 4, PostID: 1, Content: "one"}, time.Hour)
	require.NoError(t, err)
	second, err := s.Schedule(types.Comment{ID: 4, PostID: 1, Content: "two"}, 10*time.Millisecond)
	require.NoError(t, err)

	waitDone(t, first)
	assert.Equal(t, StateCancelled, first.State())
	waitDone(t, second)

	replies := rec.stored()
	require.Len(t, replies, 1)
	assert.Equal(t, "Auto-reply to comment 'two'", replies[0].Content)
}

func TestScheduler_ShutdownCancelsPending(t *testing.T) {
	rec := &recorder{}
	s := newScheduler(rec)

	var jobs []*Job
	for i := 1; i <= 5; i++ {
		job, err := s.Schedule(types.Comment{ID: i, PostID: 1, Content: "x"}, time.Hour)
		require.NoError(t, err)
		jobs = append(jobs, job)
	}
	assert.Equal(t, 5, s.Pending())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	for _, job := range jobs {
		assert.Equal(t, StateCancelled, job.State())
	}
	assert.Equal(t, 0, s.Pending())

	_, err := s.Schedule(types.Comment{ID: 9}, 0)
	require.ErrorIs(t, err, ErrClosed)
}

func TestScheduler_FailureIsLoggedNotPropagated(t *testing.T) {
	rec := &recorder{err: errors.New("store offline")}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := NewScheduler(rec.persist, "auto-replier", time.Second, logger)

	job, err := s.Schedule(types.Comment{ID: 5, PostID: 2, Content: "hey"}, 0)
	require.NoError(t, err)
	waitDone(t, job)

	assert.Equal(t, StateFailed, job.State())
	_, ok := job.Reply()
	assert.False(t, ok)
	assert.Contains(t, buf.String(), "auto-reply failed")
	assert.Contains(t, buf.String(), "store offline")
}

func TestScheduler_IndependentTimers(t *testing.T) {
	rec := &recorder{}
	s := newScheduler(rec)

	var jobs []*Job
	for i := 1; i <= 20; i++ {
		job, err := s.Schedule(types.Comment{ID: i, PostID: 1, Content: "c"}, time.Duration(i%3)*10*time.Millisecond)
		require.NoError(t, err)
		jobs = append(jobs, job)
	}
	for _, job := range jobs {
		waitDone(t, job)
	}
	assert.Len(t, rec.stored(), 20)
}

func TestScheduler_ScheduleRacingShutdown(t *testing.T) {
	rec := &recorder{}
	s := newScheduler(rec)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		jobs []*Job
	)
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			job, err := s.Schedule(types.Comment{ID: id, PostID: 1, Content: "hi"}, time.Hour)
			if err != nil {
				assert.ErrorIs(t, err, ErrClosed)
				return
			}
			mu.Lock()
			jobs = append(jobs, job)
			mu.Unlock()
		}(i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	wg.Wait()

	for _, job := range jobs {
		waitDone(t, job)
		assert.Equal(t, StateCancelled, job.State())
	}
	assert.Zero(t, s.Pending())
	assert.Empty(t, rec.stored())

	_, err := s.Schedule(types.Comment{ID: 99, PostID: 1}, 0)
	assert.ErrorIs(t, err, ErrClosed)
}
