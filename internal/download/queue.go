package download

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Runner executes one admitted job and returns once the job has reached a
// terminal outcome. The context is cancelled when the job is stopped.
type Runner interface {
	Run(ctx context.Context, jobID string)
}

// Queue is the bounded-concurrency scheduler. Jobs wait in a FIFO backlog
// until an active slot frees up; slot release is the sole re-entry point
// that drains the backlog, so no polling is needed for forward progress.
//
// The queue owns a single lock for backlog and active bookkeeping. Runner
// invocations happen on their own goroutines, never under that lock.
type Queue struct {
	mu      sync.Mutex
	backlog []string
	active  map[string]context.CancelFunc
	limit   int
	runner  Runner
	log     *logrus.Logger
}

// NewQueue creates a queue admitting at most limit concurrent jobs.
func NewQueue(limit int, runner Runner, log *logrus.Logger) *Queue {
	if limit < 1 {
		limit = 1
	}
	return &Queue{
		active: make(map[string]context.CancelFunc),
		limit:  limit,
		runner: runner,
		log:    log,
	}
}

// Enqueue appends the job to the backlog and admits it right away if a
// slot is free.
func (q *Queue) Enqueue(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.backlog = append(q.backlog, jobID)
	q.tryAdmitLocked()
}

// SetLimit changes the concurrency limit. A reduction takes effect on the
// next admission; in-flight jobs above the new limit are not preempted.
func (q *Queue) SetLimit(limit int) {
	if limit < 1 {
		limit = 1
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.limit = limit
	q.tryAdmitLocked()
}

// Limit returns the current concurrency limit.
func (q *Queue) Limit() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.limit
}

// Active returns the number of in-flight jobs.
func (q *Queue) Active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}

// Waiting returns the number of jobs in the backlog.
func (q *Queue) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}

// Cancel evicts the job. A job still in the backlog is removed outright;
// an in-flight job gets its context cancelled and stops cooperatively.
// Returns whether the job was known to the queue and whether it was still
// waiting in the backlog.
func (q *Queue) Cancel(jobID string) (found, waiting bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, id := range q.backlog {
		if id == jobID {
			q.backlog = append(q.backlog[:i], q.backlog[i+1:]...)
			return true, true
		}
	}
	if cancel, ok := q.active[jobID]; ok {
		cancel()
		return true, false
	}
	return false, false
}

// CancelAll drains the backlog and signals every in-flight job to abort.
// Returns the IDs that were still waiting and never dispatched.
func (q *Queue) CancelAll() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	waiting := q.backlog
	q.backlog = nil
	for _, cancel := range q.active {
		cancel()
	}
	return waiting
}

// done releases the job's slot and admits the next waiting job.
func (q *Queue) done(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.active, jobID)
	q.tryAdmitLocked()
}

// tryAdmitLocked is the single admission critical section. Called with
// q.mu held.
func (q *Queue) tryAdmitLocked() {
	for len(q.active) < q.limit && len(q.backlog) > 0 {
		jobID := q.backlog[0]
		q.backlog = q.backlog[1:]

		ctx, cancel := context.WithCancel(context.Background())
		q.active[jobID] = cancel

		q.log.WithFields(logrus.Fields{
			"job":    jobID,
			"active": len(q.active),
		}).Debug("admitted job")

		go func() {
			defer cancel()
			q.runner.Run(ctx, jobID)
			q.done(jobID)
		}()
	}
}
