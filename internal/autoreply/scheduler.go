// Package autoreply schedules one-shot replies to accepted comments.
package autoreply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/postmod/apiserver/internal/metrics"
	"github.com/postmod/apiserver/types"
	"github.com/puzpuzpuz/xsync/v3"
)

// ErrClosed is returned by Schedule after Shutdown has been called.
var ErrClosed = errors.New("autoreply: scheduler is shut down")

const defaultJobTimeout = 10 * time.Second

// State is the lifecycle position of a Job.
type State int32

const (
	StateScheduled State = iota
	StateRunning
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateScheduled:
		return "scheduled"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// PersistFunc stores a synthesized reply and returns it with its id.
type PersistFunc func(ctx context.Context, reply types.Comment) (types.Comment, error)

// Job is the handle for one pending reply, keyed by the id of the
// comment being answered.
type Job struct {
	CommentID int
	PostID    int
	DueAt     time.Time

	state atomic.Int32
	done  chan struct{}

	mu    sync.Mutex
	timer *time.Timer
	reply types.Comment
}

func (j *Job) State() State {
	return State(j.state.Load())
}

// Done is closed once the job has completed, failed or been cancelled.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Reply returns the stored reply of a completed job.
func (j *Job) Reply() (types.Comment, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.reply, j.State() == StateCompleted
}

func (j *Job) transition(from, to State) bool {
	return j.state.CompareAndSwap(int32(from), int32(to))
}

// Scheduler runs each reply on its own timer, independent of the request
// that created it.
type Scheduler struct {
	persist    PersistFunc
	author     string
	jobTimeout time.Duration
	logger     *slog.Logger
	now        func() time.Time

	jobs   *xsync.MapOf[int, *Job]
	active sync.WaitGroup

	// mu orders job registration against Shutdown.
	mu     sync.Mutex
	closed bool
}

func NewScheduler(persist PersistFunc, author string, jobTimeout time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if jobTimeout <= 0 {
		jobTimeout = defaultJobTimeout
	}
	return &Scheduler{
		persist:    persist,
		author:     author,
		jobTimeout: jobTimeout,
		logger:     logger.With("component", "autoreply"),
		now:        time.Now,
		jobs:       xsync.NewMapOf[int, *Job](),
	}
}

// Author is the identity replies are posted under.
func (s *Scheduler) Author() string {
	return s.author
}

// Compose builds the reply to origin. Only data captured from origin is
// used, so the reply can be produced after origin has been deleted.
func Compose(origin types.Comment, author string, at time.Time) types.Comment {
	replyTo := origin.ID
	return types.Comment{
		PostID:    origin.PostID,
		ReplyTo:   &replyTo,
		Author:    author,
		Content:   fmt.Sprintf("Auto-reply to comment '%s'", origin.Content),
		CreatedAt: at.UTC(),
		IsBlocked: false,
	}
}

// Schedule arranges for a reply to origin once delay has elapsed. A job
// already pending for the same comment is cancelled and replaced.
func (s *Scheduler) Schedule(origin types.Comment, delay time.Duration) (*Job, error) {
	if delay < 0 {
		delay = 0
	}

	job := &Job{
		CommentID: origin.ID,
		PostID:    origin.PostID,
		DueAt:     s.now().Add(delay),
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.active.Add(1)
	metrics.AutoReplyJobs.WithLabelValues(metrics.JobScheduled).Inc()
	metrics.AutoReplyPending.Inc()

	previous, loaded := s.jobs.LoadAndStore(origin.ID, job)
	job.mu.Lock()
	job.timer = time.AfterFunc(delay, func() { s.run(job, origin) })
	job.mu.Unlock()
	s.mu.Unlock()

	if loaded {
		s.cancel(previous)
	}

	s.logger.Debug("auto-reply scheduled", "comment_id", origin.ID, "post_id", origin.PostID, "delay", delay)
	return job, nil
}

// Cancel stops the pending reply for commentID. It reports whether a job
// was still waiting; a reply that already started is not affected.
func (s *Scheduler) Cancel(commentID int) bool {
	job, ok := s.jobs.LoadAndDelete(commentID)
	if !ok {
		return false
	}
	return s.cancel(job)
}

// Pending returns the number of jobs still waiting for their delay.
func (s *Scheduler) Pending() int {
	n := 0
	s.jobs.Range(func(_ int, job *Job) bool {
		if job.State() == StateScheduled {
			n++
		}
		return true
	})
	return n
}

// Shutdown cancels every waiting job and blocks until running jobs
// finish or ctx is done.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.jobs.Range(func(_ int, job *Job) bool {
		s.forget(job)
		s.cancel(job)
		return true
	})

	finished := make(chan struct{})
	go func() {
		s.active.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) cancel(job *Job) bool {
	if !job.transition(StateScheduled, StateCancelled) {
		return false
	}

	job.mu.Lock()
	if job.timer != nil {
		job.timer.Stop()
	}
	job.mu.Unlock()

	metrics.AutoReplyPending.Dec()
	metrics.AutoReplyJobs.WithLabelValues(metrics.JobCancelled).Inc()
	s.logger.Debug("auto-reply cancelled", "comment_id", job.CommentID)

	close(job.done)
	s.active.Done()
	return true
}

func (s *Scheduler) run(job *Job, origin types.Comment) {
	if !job.transition(StateScheduled, StateRunning) {
		return
	}
	defer s.active.Done()
	defer close(job.done)

	metrics.AutoReplyPending.Dec()
	s.forget(job)

	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	reply, err := s.persist(ctx, Compose(origin, s.author, s.now()))
	if err != nil {
		job.transition(StateRunning, StateFailed)
		metrics.AutoReplyJobs.WithLabelValues(metrics.JobFailed).Inc()
		s.logger.Error("auto-reply failed", "comment_id", origin.ID, "post_id", origin.PostID, "error", err)
		return
	}

	job.mu.Lock()
	job.reply = reply
	job.mu.Unlock()
	job.transition(StateRunning, StateCompleted)
	metrics.AutoReplyJobs.WithLabelValues(metrics.JobCompleted).Inc()
	s.logger.Info("auto-reply posted", "comment_id", origin.ID, "reply_id", reply.ID, "post_id", origin.PostID)
}

// forget drops job from the registry unless it has already been
// replaced by a newer job for the same comment.
func (s *Scheduler) forget(job *Job) {
	s.jobs.Compute(job.CommentID, func(current *Job, loaded bool) (*Job, bool) {
		return current, !loaded || current == job
	})
}
