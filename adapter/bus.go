package adapter

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pithecene-io/spool/log"
	"github.com/pithecene-io/spool/types"
)

// busBuffer is the number of events queued for downstream adapters.
const busBuffer = 64

// Subscriber receives events synchronously.
type Subscriber func(*Event)

// Bus delivers lifecycle notifications.
type Bus struct {
	logger   *log.Logger
	now      func() time.Time
	adapters []Adapter

	mu     sync.RWMutex
	subs   []Subscriber
	closed bool

	out  chan *Event
	done chan struct{}
}

// NewBus returns a bus publishing to adapters.
func NewBus(logger *log.Logger, adapters ...Adapter) *Bus {
	if logger == nil {
		logger = log.Nop()
	}
	b := &Bus{
		logger:   logger,
		now:      time.Now,
		adapters: adapters,
		out:      make(chan *Event, busBuffer),
		done:     make(chan struct{}),
	}
	go b.worker()
	return b
}

// Subscribe registers fn for every subsequent event.
func (b *Bus) Subscribe(fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

// Emit builds and delivers an event about r.
func (b *Bus) Emit(ctx context.Context, eventType types.EventType, r *types.Resource, cause error) {
	b.Publish(ctx, NewEvent(eventType, r, cause, b.now()))
}

// Publish delivers e to subscribers, then queues it for adapters.
// The adapter queue never blocks the caller: when busBuffer events are
// already waiting, e is dropped for adapters. Events published after
// Close, or with ctx already done, reach subscribers only.
func (b *Bus) Publish(ctx context.Context, e *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, fn := range b.subs {
		fn(e)
	}
	if b.closed || len(b.adapters) == 0 {
		return
	}
	if err := ctx.Err(); err != nil {
		b.dropped(e, err.Error())
		return
	}
	select {
	case b.out <- e:
	default:
		b.dropped(e, "adapter queue full")
	}
}

func (b *Bus) dropped(e *Event, reason string) {
	b.logger.Warn("event dropped", map[string]any{
		"event_type":  e.EventType,
		"resource_id": e.ResourceID,
		"error":       reason,
	})
}

func (b *Bus) worker() {
	defer close(b.done)
	for e := range b.out {
		for _, a := range b.adapters {
			if err := a.Publish(context.Background(), e); err != nil {
				b.logger.Error("adapter publish failed", map[string]any{
					"event_type":  e.EventType,
					"resource_id": e.ResourceID,
					"error":       err.Error(),
				})
			}
		}
	}
}

// Close drains queued events, waiting at most until ctx ends, and
// closes every adapter.
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.out)
	b.mu.Unlock()

	var errs []error
	select {
	case <-b.done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	for _, a := range b.adapters {
		if err := a.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
