package download

import (
	"context"
	"errors"
	"sync"

	"github.com/pithecene-io/spool/store"
	"github.com/pithecene-io/spool/types"
)

// failingStore rejects every Set.
type failingStore struct {
	*store.Memory
	err error
}

func (s *failingStore) Set(context.Context, string, []byte) error {
	return s.err
}

// gatedStore blocks each Set until release is closed.
type gatedStore struct {
	*store.Memory
	release chan struct{}
	entered chan string
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		Memory:  store.NewMemory(),
		release: make(chan struct{}),
		entered: make(chan string, 64),
	}
}

func (s *gatedStore) Set(ctx context.Context, key string, value []byte) error {
	s.entered <- key
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.Memory.Set(ctx, key, value)
}

// recordingConfirmer records writer outcomes.
type recordingConfirmer struct {
	mu        sync.Mutex
	confirmed []int
	failures  []error
	done      chan struct{}
	want      int
}

func newRecordingConfirmer(want int) *recordingConfirmer {
	return &recordingConfirmer{done: make(chan struct{}), want: want}
}

func (c *recordingConfirmer) Confirm(seq int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confirmed = append(c.confirmed, seq)
	c.check()
}

func (c *recordingConfirmer) Fail(err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, err)
	c.check()
	return true
}

func (c *recordingConfirmer) check() {
	if len(c.confirmed)+len(c.failures) == c.want {
		close(c.done)
	}
}

// recordingEmitter records emitted events in order.
type recordingEmitter struct {
	mu     sync.Mutex
	events []types.EventType
	last   map[types.EventType]*types.Resource
	causes []error
}

func (e *recordingEmitter) Emit(_ context.Context, event types.EventType, r *types.Resource, cause error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	if e.last == nil {
		e.last = make(map[types.EventType]*types.Resource)
	}
	e.last[event] = r
	if cause != nil {
		e.causes = append(e.causes, cause)
	}
}

func (e *recordingEmitter) Events() []types.EventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]types.EventType(nil), e.events...)
}

var errDiskFull = errors.New("no space left on device")

// readChunks decodes chunks 0..n-1 of id and concatenates their payloads.
func readChunks(ctx context.Context, st store.Store, id string, n int) ([]byte, error) {
	var out []byte
	for seq := range n {
		b, err := st.Get(ctx, types.ChunkKey(id, seq))
		if err != nil {
			return nil, err
		}
		rec, err := types.DecodeChunk(b)
		if err != nil {
			return nil, err
		}
		out = append(out, rec.Data...)
	}
	return out, nil
}
