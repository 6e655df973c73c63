// Package assemble reassembles a downloaded resource from its stored
// chunks.
//
// Chunks are fetched with a bounded look-ahead window, one future per
// index, and joined strictly in index order. Only the window's chunks are
// held in memory at a time when streaming with AssembleTo.
package assemble

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pithecene-io/spool/log"
	"github.com/pithecene-io/spool/metrics"
	"github.com/pithecene-io/spool/store"
	"github.com/pithecene-io/spool/types"
)

// DefaultWindow is the number of chunk reads kept in flight.
const DefaultWindow = 4

// ErrIncompleteReassembly matches every *IncompleteError.
var ErrIncompleteReassembly = errors.New("incomplete reassembly")

// IncompleteError reports a missing or corrupt chunk. For a resource
// marked downloaded it signals a broken completion invariant.
type IncompleteError struct {
	ResourceID string
	Seq        int
	Total      int
	Err        error
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("reassemble %s: chunk %d of %d: %v", e.ResourceID, e.Seq, e.Total, e.Err)
}

func (e *IncompleteError) Unwrap() error { return e.Err }

// Is matches ErrIncompleteReassembly.
func (e *IncompleteError) Is(target error) bool {
	return target == ErrIncompleteReassembly
}

// Config configures a Reassembler. Zero values take defaults.
type Config struct {
	Window  int
	Logger  *log.Logger
	Metrics *metrics.Collector
}

// Reassembler reads chunks from a store and concatenates them in order.
// It never modifies the store.
type Reassembler struct {
	store   store.Store
	window  int
	logger  *log.Logger
	metrics *metrics.Collector
}

// New returns a Reassembler over st.
func New(st store.Store, cfg Config) *Reassembler {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}
	return &Reassembler{store: st, window: cfg.Window, logger: cfg.Logger, metrics: cfg.Metrics}
}

// Assemble returns chunks 0..total-1 of resourceID as one Blob tagged
// with mediaType. On any failure no data is returned.
func (r *Reassembler) Assemble(ctx context.Context, resourceID string, total int, mediaType string) (*Blob, error) {
	var buf bytes.Buffer
	if _, err := r.AssembleTo(ctx, &buf, resourceID, total); err != nil {
		return nil, err
	}
	return NewBlob(resourceID, mediaType, buf.Bytes()), nil
}

type result struct {
	data []byte
	err  error
}

// AssembleTo streams chunks 0..total-1 of resourceID to w in order and
// returns the number of bytes written. On failure w may already hold a
// prefix of the payload.
func (r *Reassembler) AssembleTo(ctx context.Context, w io.Writer, resourceID string, total int) (int64, error) {
	if total < 0 {
		return 0, fmt.Errorf("reassemble %s: negative chunk count %d", resourceID, total)
	}

	n, err := r.assemble(ctx, w, resourceID, total)
	r.metrics.RecordAssembly(n, err)
	if err != nil {
		r.logger.Error("reassembly failed", map[string]any{
			"resource_id": resourceID,
			"total":       total,
			"error":       err.Error(),
		})
		return n, err
	}
	r.logger.Debug("reassembled", map[string]any{
		"resource_id": resourceID,
		"total":       total,
		"bytes":       n,
	})
	return n, nil
}

func (r *Reassembler) assemble(ctx context.Context, w io.Writer, resourceID string, total int) (int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// pending holds one future per index, in index order. Its capacity
	// bounds the look-ahead.
	pending := make(chan chan result, r.window)
	go func() {
		defer close(pending)
		for seq := range total {
			future := make(chan result, 1)
			select {
			case pending <- future:
			case <-ctx.Done():
				return
			}
			go func() {
				data, err := r.fetch(ctx, resourceID, seq, total)
				future <- result{data: data, err: err}
			}()
		}
	}()

	var written int64
	seq := 0
	for future := range pending {
		res := <-future
		if res.err != nil {
			return written, res.err
		}
		m, err := w.Write(res.data)
		written += int64(m)
		if err != nil {
			return written, fmt.Errorf("reassemble %s: write chunk %d: %w", resourceID, seq, err)
		}
		seq++
	}
	if seq != total {
		// The producer stopped early: ctx ended before every index was queued.
		return written, ctx.Err()
	}
	return written, nil
}

func (r *Reassembler) fetch(ctx context.Context, resourceID string, seq, total int) ([]byte, error) {
	key := types.ChunkKey(resourceID, seq)
	b, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &IncompleteError{ResourceID: resourceID, Seq: seq, Total: total, Err: err}
		}
		return nil, fmt.Errorf("reassemble %s: read chunk %d: %w", resourceID, seq, err)
	}
	rec, err := types.DecodeChunk(b)
	if err != nil {
		return nil, &IncompleteError{ResourceID: resourceID, Seq: seq, Total: total, Err: err}
	}
	if rec.ResourceID != resourceID || rec.Seq != seq {
		return nil, &IncompleteError{
			ResourceID: resourceID,
			Seq:        seq,
			Total:      total,
			Err:        fmt.Errorf("record belongs to %s chunk %d", rec.ResourceID, rec.Seq),
		}
	}
	return rec.Data, nil
}
