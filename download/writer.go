package download

import (
	"context"
	"sync"

	"github.com/pithecene-io/spool/log"
	"github.com/pithecene-io/spool/metrics"
	"github.com/pithecene-io/spool/store"
	"github.com/pithecene-io/spool/types"
)

// DefaultMaxInFlight bounds concurrent chunk writes per writer.
const DefaultMaxInFlight = 16

// Confirmer receives the outcome of each chunk write.
// *Tracker implements Confirmer.
type Confirmer interface {
	Confirm(seq int)
	Fail(err error) bool
}

var _ Confirmer = (*Tracker)(nil)

// ChunkWriter persists chunks to a store on background goroutines.
type ChunkWriter struct {
	store   store.Store
	sem     chan struct{}
	wg      sync.WaitGroup
	logger  *log.Logger
	metrics *metrics.Collector
}

// WriterConfig configures a ChunkWriter. Zero values take defaults.
type WriterConfig struct {
	MaxInFlight int
	Logger      *log.Logger
	Metrics     *metrics.Collector
}

// NewChunkWriter returns a writer over st.
func NewChunkWriter(st store.Store, cfg WriterConfig) *ChunkWriter {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}
	return &ChunkWriter{
		store:   st,
		sem:     make(chan struct{}, cfg.MaxInFlight),
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Write encodes data as chunk seq of resourceID and stores it
// asynchronously. Exactly one of c.Confirm(seq), after the store accepts
// the write, or c.Fail with a *PersistenceError is invoked.
//
// Write blocks while MaxInFlight writes are outstanding. It returns an
// error only when ctx ends first or the record cannot be encoded; in that
// case no write is issued and c is not called. data may be reused once
// Write returns.
func (w *ChunkWriter) Write(ctx context.Context, resourceID string, seq int, data []byte, c Confirmer) error {
	rec, err := types.EncodeChunk(&types.ChunkRecord{ResourceID: resourceID, Seq: seq, Data: data})
	if err != nil {
		return err
	}

	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	key := types.ChunkKey(resourceID, seq)
	// In-flight writes finish even if the download is cancelled; chunks
	// already handed to the store stay in place.
	writeCtx := context.WithoutCancel(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-w.sem }()

		if err := w.store.Set(writeCtx, key, rec); err != nil {
			w.metrics.IncStoreWriteFailure()
			w.metrics.IncChunkWriteFailure()
			w.logger.Error("chunk write failed", map[string]any{
				"seq":   seq,
				"key":   key,
				"error": err.Error(),
			})
			c.Fail(&PersistenceError{Key: key, Seq: seq, Err: err})
			return
		}
		w.metrics.IncStoreWriteSuccess()
		w.metrics.IncChunkConfirmed()
		c.Confirm(seq)
	}()
	return nil
}

// Wait blocks until every issued write has resolved.
func (w *ChunkWriter) Wait() {
	w.wg.Wait()
}
