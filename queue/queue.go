// Package queue provides the bounded download queue: jobs are added
// under a key, dispatched FIFO when a slot is free and hold their slot
// until released with Done or until their Run returns.
package queue

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/pithecene-io/spool/log"
)

// DefaultLimit is the number of concurrently active jobs.
const DefaultLimit = 2

var (
	// ErrDuplicate is returned by Add for a key already pending or active.
	ErrDuplicate = errors.New("key already queued")
	// ErrClosed is returned by Add after the queue has shut down.
	ErrClosed = errors.New("queue closed")
)

// Job is one unit of queued work.
type Job interface {
	Run(ctx context.Context) error
}

// JobFunc adapts a function to Job.
type JobFunc func(ctx context.Context) error

// Run calls f.
func (f JobFunc) Run(ctx context.Context) error { return f(ctx) }

// Dropper is implemented by jobs that need to know when the queue shuts
// down before running them. Drop is called without the queue lock held.
type Dropper interface {
	Drop()
}

type entry struct {
	key string
	job Job
}

// Queue dispatches at most limit jobs at a time.
type Queue struct {
	limit  int
	logger *log.Logger

	mu      sync.Mutex
	pending []entry
	// active maps a key to the dispatch generation holding its slot.
	active  map[string]uint64
	gen     uint64
	closed  bool
	started bool
	// changed is closed and replaced on every state change.
	changed chan struct{}

	wake chan struct{}
	wg   sync.WaitGroup
}

// New returns a queue allowing limit concurrent jobs. A non-positive
// limit takes DefaultLimit.
func New(limit int, logger *log.Logger) *Queue {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Queue{
		limit:   limit,
		logger:  logger,
		active:  make(map[string]uint64),
		changed: make(chan struct{}),
		wake:    make(chan struct{}, 1),
	}
}

// Start runs the dispatcher until ctx ends. Jobs run with ctx; when it
// ends pending jobs are dropped, each Dropper among them is told, and Add
// returns ErrClosed.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.signal()
		for {
			select {
			case <-ctx.Done():
				q.shutdown()
				return
			case <-q.wake:
				q.dispatch(ctx)
			}
		}
	}()
}

// Add enqueues job under key.
func (q *Queue) Add(key string, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if q.hasLocked(key) {
		return ErrDuplicate
	}
	q.pending = append(q.pending, entry{key: key, job: job})
	q.broadcastLocked()
	q.signal()
	return nil
}

// Done releases key's slot, or removes key if it is still pending.
// Returns false if key is unknown; calling Done twice is harmless.
func (q *Queue) Done(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.active[key]; ok {
		delete(q.active, key)
		q.broadcastLocked()
		q.signal()
		return true
	}
	if i := slices.IndexFunc(q.pending, func(e entry) bool { return e.key == key }); i >= 0 {
		q.pending = slices.Delete(q.pending, i, i+1)
		q.broadcastLocked()
		return true
	}
	return false
}

// Has reports whether key is pending or active.
func (q *Queue) Has(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.hasLocked(key)
}

// Len returns the number of pending jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Active returns the number of jobs holding a slot.
func (q *Queue) Active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}

// Wait blocks until no job is pending or active, or ctx ends.
func (q *Queue) Wait(ctx context.Context) error {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 && len(q.active) == 0 {
			q.mu.Unlock()
			return nil
		}
		ch := q.changed
		q.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Shutdown waits for the dispatcher to exit after Start's context ended.
func (q *Queue) Shutdown() {
	q.wg.Wait()
}

func (q *Queue) dispatch(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.active) < q.limit && len(q.pending) > 0 && ctx.Err() == nil {
		e := q.pending[0]
		q.pending = q.pending[1:]
		q.gen++
		q.active[e.key] = q.gen
		q.broadcastLocked()

		q.wg.Add(1)
		go q.run(ctx, e, q.gen)
	}
}

func (q *Queue) run(ctx context.Context, e entry, gen uint64) {
	defer q.wg.Done()
	defer q.release(e.key, gen)
	q.logger.Debug("job started", map[string]any{"key": e.key})
	if err := e.job.Run(ctx); err != nil {
		q.logger.Warn("job failed", map[string]any{"key": e.key, "error": err.Error()})
	}
}

// release frees key's slot if it is still held by generation gen. A key
// released early with Done and re-added is not released by the old run.
func (q *Queue) release(key string, gen uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.active[key] != gen {
		return
	}
	delete(q.active, key)
	q.broadcastLocked()
	q.signal()
}

func (q *Queue) shutdown() {
	q.mu.Lock()
	q.closed = true
	dropped := q.pending
	q.pending = nil
	q.broadcastLocked()
	q.mu.Unlock()

	if len(dropped) > 0 {
		q.logger.Info("dropping pending jobs", map[string]any{"count": len(dropped)})
	}
	for _, e := range dropped {
		if d, ok := e.job.(Dropper); ok {
			d.Drop()
		}
	}
}

func (q *Queue) hasLocked(key string) bool {
	if _, ok := q.active[key]; ok {
		return true
	}
	return slices.ContainsFunc(q.pending, func(e entry) bool { return e.key == key })
}

func (q *Queue) broadcastLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}

// signal wakes the dispatcher without blocking.
func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
