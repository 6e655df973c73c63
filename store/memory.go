package store

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// Memory is an in-process Store. Values are copied on the way in and out.
type Memory struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap(err, "get", key)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, wrap(ErrClosed, "get", key)
	}
	v, ok := m.data[key]
	if !ok {
		return nil, notFound("get", key)
	}
	return slices.Clone(v), nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return wrap(err, "set", key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return wrap(ErrClosed, "set", key)
	}
	v := slices.Clone(value)
	if v == nil {
		v = []byte{}
	}
	m.data[key] = v
	return nil
}

func (m *Memory) Destroy(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return wrap(err, "destroy", key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return wrap(ErrClosed, "destroy", key)
	}
	delete(m.data, key)
	return nil
}

func (m *Memory) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap(err, "list", prefix)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, wrap(ErrClosed, "list", prefix)
	}
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
