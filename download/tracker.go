// Package download implements the per-resource download lifecycle: the
// completion tracker state machine, the chunk writer that persists each
// network fragment, and the controller that drives both from an HTTP
// stream.
package download

import (
	"fmt"
	"sync"
	"time"
)

// State is a tracker lifecycle state.
type State string

const (
	StateIdle                 State = "idle"
	StateDownloading          State = "downloading"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateComplete             State = "complete"
	StateFailed               State = "failed"
)

// IsTerminal returns true for complete and failed.
func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateFailed
}

// CompletionInfo is passed to the completion hook.
type CompletionInfo struct {
	ResourceID string
	ChunkCount int
	MediaType  string
}

// TrackerSnapshot is a point-in-time view of a tracker.
type TrackerSnapshot struct {
	ResourceID string `json:"resource_id"`
	State      State  `json:"state"`
	Issued     int    `json:"chunks_issued"`
	Confirmed  int    `json:"chunks_confirmed"`
	// TotalChunkCount is -1 until end-of-stream.
	TotalChunkCount   int       `json:"total_chunk_count"`
	DuplicateConfirms int       `json:"duplicate_confirms"`
	MediaType         string    `json:"media_type,omitempty"`
	StartedAt         time.Time `json:"started_at"`
	LastActivity      time.Time `json:"last_activity"`
	Err               string    `json:"error,omitempty"`
}

// Tracker is the completion state machine for one resource.
//
// It counts chunks issued (assigned a sequence index) against chunks
// confirmed (durably written). Complete is reached exactly once, when
// end-of-stream has been seen, every issued chunk is confirmed and the
// media type is known. Failed is absorbing.
//
// All methods are safe for concurrent use. Hooks run outside the lock on
// the goroutine that caused the transition; Done is closed after the hook
// returns.
type Tracker struct {
	mu sync.Mutex

	resourceID string
	state      State
	issued     int
	confirmed  int
	duplicates int
	pending    map[int]struct{}
	ended      bool
	total      int
	mediaType  string
	err        error

	startedAt    time.Time
	lastActivity time.Time

	finished bool
	done     chan struct{}

	onComplete func(CompletionInfo)
	onFail     func(error)
	now        func() time.Time
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithOnComplete registers the hook run on entering complete.
func WithOnComplete(fn func(CompletionInfo)) TrackerOption {
	return func(t *Tracker) { t.onComplete = fn }
}

// WithOnFail registers the hook run on entering failed.
func WithOnFail(fn func(error)) TrackerOption {
	return func(t *Tracker) { t.onFail = fn }
}

// WithClock overrides the time source used for activity tracking.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// NewTracker returns an idle tracker for resourceID.
func NewTracker(resourceID string, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		resourceID: resourceID,
		state:      StateIdle,
		total:      -1,
		pending:    make(map[int]struct{}),
		done:       make(chan struct{}),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.lastActivity = t.now()
	return t
}

// Start moves idle to downloading.
func (t *Tracker) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case StateIdle:
		t.state = StateDownloading
		t.startedAt = t.now()
		t.lastActivity = t.startedAt
		return nil
	case StateDownloading, StateAwaitingConfirmation:
		return ErrAlreadyDownloading
	default:
		return fmt.Errorf("start %s: %w", t.resourceID, ErrTerminal)
	}
}

// Issue assigns the next sequence index to an arriving fragment.
// Indices are dense and 0-based.
func (t *Tracker) Issue() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateDownloading {
		if t.state.IsTerminal() {
			return 0, ErrTerminal
		}
		return 0, ErrNotDownloading
	}
	seq := t.issued
	t.issued++
	t.pending[seq] = struct{}{}
	t.lastActivity = t.now()
	return seq, nil
}

// Confirm records the durable write of chunk seq.
// Unknown and repeated indices are ignored and counted as duplicates.
// Confirmations after failure are ignored.
func (t *Tracker) Confirm(seq int) {
	t.mu.Lock()
	if t.state == StateFailed || t.state == StateComplete {
		if t.state == StateComplete {
			t.duplicates++
		}
		t.mu.Unlock()
		return
	}
	if _, ok := t.pending[seq]; !ok {
		t.duplicates++
		t.mu.Unlock()
		return
	}
	delete(t.pending, seq)
	t.confirmed++
	t.lastActivity = t.now()
	t.maybeCompleteLocked()
}

// End records end-of-stream. The total chunk count is fixed to the
// number of chunks issued so far. An empty mediaType leaves the tracker
// awaiting confirmation indefinitely.
func (t *Tracker) End(mediaType string) error {
	t.mu.Lock()
	if t.state != StateDownloading {
		state := t.state
		t.mu.Unlock()
		if state.IsTerminal() {
			return ErrTerminal
		}
		return ErrNotDownloading
	}
	t.ended = true
	t.total = t.issued
	t.mediaType = mediaType
	t.state = StateAwaitingConfirmation
	t.lastActivity = t.now()
	t.maybeCompleteLocked()
	return nil
}

// maybeCompleteLocked enters complete when every condition holds.
// Called with t.mu held; always releases it.
func (t *Tracker) maybeCompleteLocked() {
	if t.finished || !t.ended || t.confirmed != t.issued || t.mediaType == "" {
		t.mu.Unlock()
		return
	}
	t.finished = true
	t.state = StateComplete
	info := CompletionInfo{ResourceID: t.resourceID, ChunkCount: t.total, MediaType: t.mediaType}
	hook := t.onComplete
	t.mu.Unlock()

	if hook != nil {
		hook(info)
	}
	close(t.done)
}

// Fail drives the tracker to failed with err as the cause.
// Returns false if the tracker was already complete or failed.
func (t *Tracker) Fail(err error) bool {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return false
	}
	t.finished = true
	t.state = StateFailed
	t.err = err
	hook := t.onFail
	t.mu.Unlock()

	if hook != nil {
		hook(err)
	}
	close(t.done)
	return true
}

// Done is closed once the tracker is complete or failed and the
// corresponding hook has returned.
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

// Err returns the failure cause, or nil unless failed.
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Idle returns the time since the last fragment, confirmation or
// transition.
func (t *Tracker) Idle() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now().Sub(t.lastActivity)
}

// Snapshot returns a point-in-time view.
func (t *Tracker) Snapshot() TrackerSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := TrackerSnapshot{
		ResourceID:        t.resourceID,
		State:             t.state,
		Issued:            t.issued,
		Confirmed:         t.confirmed,
		TotalChunkCount:   t.total,
		DuplicateConfirms: t.duplicates,
		MediaType:         t.mediaType,
		StartedAt:         t.startedAt,
		LastActivity:      t.lastActivity,
	}
	if t.err != nil {
		s.Err = t.err.Error()
	}
	return s
}
