package store

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/spool/iox"
)

// lodeKeyspace is the path prefix under which keys are stored.
const lodeKeyspace = "kv/"

// Lode is a Store backed by a lode object store (filesystem, S3 or memory).
// Each key is one object at kv/<escaped key>.
type Lode struct {
	factory lode.StoreFactory

	once    sync.Once
	backend lode.Store
	initErr error

	mu     sync.RWMutex
	closed bool
}

var _ Store = (*Lode)(nil)

// NewLode wraps an existing lode store.
func NewLode(s lode.Store) *Lode {
	return NewLodeWithFactory(func() (lode.Store, error) { return s, nil })
}

// NewLodeFS creates a filesystem-backed store rooted at root.
func NewLodeFS(root string) *Lode {
	return NewLodeWithFactory(lode.NewFSFactory(root))
}

// NewLodeWithFactory creates a store that lazily initializes its backend
// from factory on first use. Use lode.NewMemoryFactory() for testing.
func NewLodeWithFactory(factory lode.StoreFactory) *Lode {
	return &Lode{factory: factory}
}

func (l *Lode) store(op, key string) (lode.Store, error) {
	l.mu.RLock()
	closed := l.closed
	l.mu.RUnlock()
	if closed {
		return nil, wrap(ErrClosed, op, key)
	}
	l.once.Do(func() {
		l.backend, l.initErr = l.factory()
	})
	if l.initErr != nil {
		return nil, wrap(l.initErr, "open", "")
	}
	return l.backend, nil
}

func objectPath(key string) string {
	return lodeKeyspace + url.PathEscape(key)
}

func (l *Lode) Get(ctx context.Context, key string) ([]byte, error) {
	s, err := l.store("get", key)
	if err != nil {
		return nil, err
	}
	p := objectPath(key)
	rc, err := s.Get(ctx, p)
	if err != nil {
		if ok, existsErr := s.Exists(ctx, p); existsErr == nil && !ok {
			return nil, notFound("get", key)
		}
		return nil, wrap(err, "get", key)
	}
	defer iox.DiscardClose(rc)
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, wrap(err, "get", key)
	}
	return b, nil
}

// Set replaces any existing object. lode objects are write-once, so an
// existing path is deleted before the new value is put.
func (l *Lode) Set(ctx context.Context, key string, value []byte) error {
	s, err := l.store("set", key)
	if err != nil {
		return err
	}
	p := objectPath(key)
	exists, err := s.Exists(ctx, p)
	if err != nil {
		return wrap(err, "set", key)
	}
	if exists {
		if err := s.Delete(ctx, p); err != nil {
			return wrap(err, "set", key)
		}
	}
	if err := s.Put(ctx, p, bytes.NewReader(value)); err != nil {
		return wrap(err, "set", key)
	}
	return nil
}

func (l *Lode) Destroy(ctx context.Context, key string) error {
	s, err := l.store("destroy", key)
	if err != nil {
		return err
	}
	p := objectPath(key)
	exists, err := s.Exists(ctx, p)
	if err != nil {
		return wrap(err, "destroy", key)
	}
	if !exists {
		return nil
	}
	if err := s.Delete(ctx, p); err != nil {
		return wrap(err, "destroy", key)
	}
	return nil
}

func (l *Lode) List(ctx context.Context, prefix string) ([]string, error) {
	s, err := l.store("list", prefix)
	if err != nil {
		return nil, err
	}
	paths, err := s.List(ctx, lodeKeyspace)
	if err != nil {
		if classify(err) == ErrNotFound {
			return nil, nil
		}
		return nil, wrap(err, "list", prefix)
	}
	var keys []string
	for _, p := range paths {
		key, err := url.PathUnescape(path.Base(p))
		if err != nil {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return slices.Compact(keys), nil
}

func (l *Lode) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

