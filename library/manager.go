// Package library orchestrates downloads for a collection of resources:
// it queues them, runs one download controller per resource, persists
// the resource records and serves reassembled blobs.
package library

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/pithecene-io/spool/assemble"
	"github.com/pithecene-io/spool/download"
	"github.com/pithecene-io/spool/log"
	"github.com/pithecene-io/spool/metrics"
	"github.com/pithecene-io/spool/queue"
	"github.com/pithecene-io/spool/store"
	"github.com/pithecene-io/spool/types"
)

var (
	// ErrDownloaded is returned by Enqueue for a resource already marked
	// downloaded.
	ErrDownloaded = errors.New("resource already downloaded")
	// ErrNotDownloaded is returned by Blob for a resource whose download
	// has not completed.
	ErrNotDownloaded = errors.New("resource not downloaded")
)

// Config configures a Manager. Zero values take defaults.
type Config struct {
	Concurrency    int
	Client         *http.Client
	UserAgent      string
	FragmentSize   int
	MaxInFlight    int
	StallTimeout   time.Duration
	AssembleWindow int
	// CacheAssembled stores the reassembled blob under types.BlobKey on
	// first use and serves it from there afterwards.
	CacheAssembled bool

	Alerter download.Alerter
	Emitter download.Emitter
	Logger  *log.Logger
	Metrics *metrics.Collector
}

type run struct {
	controller *download.Controller
	done       chan struct{}
	once       sync.Once
}

func (r *run) finish() {
	r.once.Do(func() { close(r.done) })
}

// Manager owns the download queue and the active controllers.
type Manager struct {
	cfg       Config
	store     store.Store
	catalog   *Catalog
	queue     *queue.Queue
	assembler *assemble.Reassembler
	logger    *log.Logger

	mu   sync.Mutex
	runs map[string]*run
}

// NewManager returns a manager over st. Call Start before Enqueue'd
// downloads can run.
func NewManager(st store.Store, cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}
	return &Manager{
		cfg:     cfg,
		store:   st,
		catalog: NewCatalog(st),
		queue:   queue.New(cfg.Concurrency, cfg.Logger),
		assembler: assemble.New(st, assemble.Config{
			Window:  cfg.AssembleWindow,
			Logger:  cfg.Logger,
			Metrics: cfg.Metrics,
		}),
		logger: cfg.Logger,
		runs:   make(map[string]*run),
	}
}

// Catalog returns the resource record catalog.
func (m *Manager) Catalog() *Catalog { return m.catalog }

// Start runs the download queue until ctx ends.
func (m *Manager) Start(ctx context.Context) {
	m.queue.Start(ctx)
}

// Wait blocks until no download is pending or active.
func (m *Manager) Wait(ctx context.Context) error {
	return m.queue.Wait(ctx)
}

// Shutdown waits for the queue to stop after Start's context ended.
func (m *Manager) Shutdown() {
	m.queue.Shutdown()
}

// Enqueue persists r and queues its download. It returns ErrDownloaded
// when r, or the stored record with r's ID, is already downloaded, and
// download.ErrAlreadyDownloading when a download of r is pending or
// active.
func (m *Manager) Enqueue(ctx context.Context, r *types.Resource) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.IsDownloaded {
		return fmt.Errorf("%w: %s", ErrDownloaded, r.ID)
	}
	key := r.QueueKey()
	if m.queue.Has(key) {
		return fmt.Errorf("%w: %s", download.ErrAlreadyDownloading, r.ID)
	}

	res := r.Clone()
	c := download.NewController(res, m.store, download.ControllerConfig{
		Client:       m.cfg.Client,
		UserAgent:    m.cfg.UserAgent,
		FragmentSize: m.cfg.FragmentSize,
		MaxInFlight:  m.cfg.MaxInFlight,
		StallTimeout: m.cfg.StallTimeout,
		Alerter:      m.cfg.Alerter,
		Emitter:      m.cfg.Emitter,
		Hooks: download.Hooks{
			Persist: m.catalog.Save,
			Release: func() { m.queue.Done(key) },
		},
		Logger:  m.logger,
		Metrics: m.cfg.Metrics,
	})
	rn := &run{controller: c, done: make(chan struct{})}

	// Reserve before touching the stored record.
	m.mu.Lock()
	if _, ok := m.runs[r.ID]; ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", download.ErrAlreadyDownloading, r.ID)
	}
	m.runs[r.ID] = rn
	m.mu.Unlock()

	if err := m.prepare(ctx, r); err != nil {
		m.forget(r.ID, rn)
		return err
	}

	err := m.queue.Add(key, &job{manager: m, id: r.ID, run: rn})
	if err != nil {
		m.forget(r.ID, rn)
		if errors.Is(err, queue.ErrDuplicate) {
			return fmt.Errorf("%w: %s", download.ErrAlreadyDownloading, r.ID)
		}
		return err
	}

	m.cfg.Metrics.IncDownloadQueued()
	if m.cfg.Emitter != nil {
		m.cfg.Emitter.Emit(ctx, types.EventDownloadQueued, res.Clone(), nil)
	}
	m.logger.Info("download queued", map[string]any{"resource_id": r.ID})
	return nil
}

// prepare rejects a resource whose stored record is downloaded, clears
// any blob cached for the ID and saves r.
func (m *Manager) prepare(ctx context.Context, r *types.Resource) error {
	stored, err := m.catalog.Load(ctx, r.ID)
	switch {
	case err == nil && stored.IsDownloaded:
		return fmt.Errorf("%w: %s", ErrDownloaded, r.ID)
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return err
	}
	if err := m.store.Destroy(ctx, types.BlobKey(r.ID)); err != nil {
		return fmt.Errorf("enqueue %s: %w", r.ID, err)
	}
	return m.catalog.Save(ctx, r)
}

// job is the queued download of one resource.
type job struct {
	manager *Manager
	id      string
	run     *run
}

func (j *job) Run(ctx context.Context) error {
	defer j.manager.forget(j.id, j.run)
	return j.run.controller.Run(ctx)
}

// Drop fails a download the queue shut down before running.
func (j *job) Drop() {
	j.run.controller.Cancel()
	j.manager.forget(j.id, j.run)
}

var _ queue.Dropper = (*job)(nil)

func (m *Manager) forget(id string, rn *run) {
	m.mu.Lock()
	if m.runs[id] == rn {
		delete(m.runs, id)
	}
	m.mu.Unlock()
	rn.finish()
}

func (m *Manager) lookup(id string) *run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[id]
}

// Cancel aborts the pending or active download of id. Chunks already
// written stay in place. Returns false if id has no download.
func (m *Manager) Cancel(id string) bool {
	rn := m.lookup(id)
	if rn == nil {
		return false
	}
	rn.controller.Cancel()
	// A download cancelled while pending never runs.
	if rn.controller.Tracker().Snapshot().StartedAt.IsZero() {
		m.forget(id, rn)
	}
	return true
}

// Delete cancels any download of id and removes its chunks, its blob
// cache and its record. Deleting a missing resource is not an error.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if rn := m.lookup(id); rn != nil {
		m.Cancel(id)
		select {
		case <-rn.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	keys, err := m.store.List(ctx, types.ChunkKeyPrefix(id))
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	var removed int
	for _, key := range keys {
		if _, ok := types.ParseChunkKey(id, key); !ok {
			continue
		}
		if err := m.store.Destroy(ctx, key); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
		removed++
	}
	if err := m.store.Destroy(ctx, types.BlobKey(id)); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	if err := m.catalog.Delete(ctx, id); err != nil {
		return err
	}
	m.logger.Info("resource deleted", map[string]any{"resource_id": id, "chunks": removed})
	return nil
}

// Blob returns the reassembled audio of a downloaded resource.
func (m *Manager) Blob(ctx context.Context, id string) (*assemble.Blob, error) {
	r, err := m.catalog.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.IsDownloaded {
		return nil, fmt.Errorf("%w: %s", ErrNotDownloaded, id)
	}

	if m.cfg.CacheAssembled {
		if blob, ok := m.cachedBlob(ctx, r); ok {
			return blob, nil
		}
	}

	blob, err := m.assembler.Assemble(ctx, id, r.ChunkCount, r.MediaType)
	if err != nil {
		return nil, err
	}

	if m.cfg.CacheAssembled {
		m.cacheBlob(ctx, blob)
	}
	return blob, nil
}

// Assembler exposes the reassembler for streaming reads.
func (m *Manager) Assembler() *assemble.Reassembler { return m.assembler }

func (m *Manager) cachedBlob(ctx context.Context, r *types.Resource) (*assemble.Blob, bool) {
	b, err := m.store.Get(ctx, types.BlobKey(r.ID))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.logger.Warn("blob cache read failed", map[string]any{"resource_id": r.ID, "error": err.Error()})
		}
		return nil, false
	}
	rec, err := types.DecodeBlob(b)
	if err != nil || rec.ResourceID != r.ID {
		m.logger.Warn("blob cache entry invalid", map[string]any{"resource_id": r.ID})
		return nil, false
	}
	return assemble.NewBlob(rec.ResourceID, rec.MediaType, rec.Data), true
}

func (m *Manager) cacheBlob(ctx context.Context, blob *assemble.Blob) {
	b, err := types.EncodeBlob(&types.BlobRecord{
		ResourceID: blob.ResourceID,
		MediaType:  blob.MediaType,
		Data:       blob.Bytes(),
	})
	if err == nil {
		err = m.store.Set(ctx, types.BlobKey(blob.ResourceID), b)
	}
	if err != nil {
		m.logger.Warn("blob cache write failed", map[string]any{"resource_id": blob.ResourceID, "error": err.Error()})
	}
}

// Status returns the live tracker snapshot of id's download.
func (m *Manager) Status(id string) (download.TrackerSnapshot, bool) {
	rn := m.lookup(id)
	if rn == nil {
		return download.TrackerSnapshot{}, false
	}
	return rn.controller.Tracker().Snapshot(), true
}

// Stalled returns the IDs of running downloads with no activity for at
// least d, sorted.
func (m *Manager) Stalled(d time.Duration) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, rn := range m.runs {
		t := rn.controller.Tracker()
		switch t.State() {
		case download.StateDownloading, download.StateAwaitingConfirmation:
			if t.Idle() >= d {
				ids = append(ids, id)
			}
		}
	}
	slices.Sort(ids)
	return ids
}

// CacheAssembled reports whether Blob serves from the blob cache.
func (m *Manager) CacheAssembled() bool { return m.cfg.CacheAssembled }
