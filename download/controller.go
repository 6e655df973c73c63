package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pithecene-io/spool/iox"
	"github.com/pithecene-io/spool/log"
	"github.com/pithecene-io/spool/metrics"
	"github.com/pithecene-io/spool/store"
	"github.com/pithecene-io/spool/types"
)

// DefaultFragmentSize is the read buffer size for the response body.
const DefaultFragmentSize = 64 * 1024

// AlertMessage is shown to the user when a transport error aborts a download.
const AlertMessage = "Error downloading this episode. Please try again."

// Alerter reports user-facing messages.
type Alerter interface {
	Alert(resourceID, message string)
}

// AlertFunc adapts a function to Alerter.
type AlertFunc func(resourceID, message string)

// Alert calls f.
func (f AlertFunc) Alert(resourceID, message string) { f(resourceID, message) }

// Emitter receives lifecycle notifications. r is a copy owned by the
// receiver; cause is set for download:cancel.
type Emitter interface {
	Emit(ctx context.Context, event types.EventType, r *types.Resource, cause error)
}

// Hooks are the completion side effects owned by the caller.
type Hooks struct {
	// Persist saves the completed resource record.
	Persist func(ctx context.Context, r *types.Resource) error
	// Release frees the resource's download queue slot. Called once per
	// terminal transition.
	Release func()
}

// ControllerConfig configures a Controller. Zero values take defaults.
type ControllerConfig struct {
	Client       *http.Client
	UserAgent    string
	FragmentSize int
	MaxInFlight  int
	// StallTimeout fails the download when neither a fragment nor a
	// confirmation is observed for this long. Zero disables the watchdog.
	StallTimeout time.Duration

	Alerter Alerter
	Emitter Emitter
	Hooks   Hooks
	Logger  *log.Logger
	Metrics *metrics.Collector
}

// Controller drives one resource's download: it streams the enclosure
// URL, hands each fragment to a ChunkWriter, resolves the media type at
// end-of-stream and runs the completion side effects.
type Controller struct {
	cfg     ControllerConfig
	tracker *Tracker
	writer  *ChunkWriter
	logger  *log.Logger

	mu         sync.Mutex
	res        *types.Resource
	cancel     context.CancelCauseFunc
	ctx        context.Context
	persistErr error
}

// NewController returns a controller for r. The controller takes
// ownership of r; use Resource for a copy.
func NewController(r *types.Resource, st store.Store, cfg ControllerConfig) *Controller {
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.FragmentSize <= 0 {
		cfg.FragmentSize = DefaultFragmentSize
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}
	logger := cfg.Logger.WithResource(r.ID)
	c := &Controller{
		cfg:    cfg,
		res:    r,
		logger: logger,
		writer: NewChunkWriter(st, WriterConfig{
			MaxInFlight: cfg.MaxInFlight,
			Logger:      logger,
			Metrics:     cfg.Metrics,
		}),
	}
	c.tracker = NewTracker(r.ID, WithOnComplete(c.onComplete), WithOnFail(c.onFail))
	return c
}

// Tracker exposes the controller's state machine.
func (c *Controller) Tracker() *Tracker { return c.tracker }

// Resource returns a copy of the resource as the controller currently
// sees it.
func (c *Controller) Resource() *types.Resource {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.res.Clone()
}

// Run downloads the resource and blocks until it is complete or failed
// and every issued chunk write has resolved.
//
// Returns nil on completion. On failure returns the cause: a
// *TransportError, *PersistenceError, ErrCancelled or ErrStalled.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.tracker.Start(); err != nil {
		if c.tracker.State() == StateFailed {
			return c.tracker.Err()
		}
		return err
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	c.mu.Lock()
	c.ctx, c.cancel = ctx, cancel
	c.mu.Unlock()

	c.cfg.Metrics.IncDownloadStarted()
	c.emit(ctx, types.EventDownloadStarted, nil)
	c.logger.Info("download started", map[string]any{"url": c.res.EnclosureURL})

	if c.cfg.StallTimeout > 0 {
		go c.watch(c.cfg.StallTimeout)
	}

	// Parent cancellation fails the download like a cancel. When the
	// tracker failed first this Fail is a no-op.
	go func() {
		select {
		case <-ctx.Done():
			c.tracker.Fail(ErrCancelled)
		case <-c.tracker.Done():
		}
	}()

	c.stream(ctx)

	<-c.tracker.Done()
	c.writer.Wait()

	if c.tracker.State() == StateComplete {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.persistErr
	}
	return c.tracker.Err()
}

// stream reads the response body and issues one chunk per non-empty read.
func (c *Controller) stream(ctx context.Context) {
	url := c.res.EnclosureURL
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.tracker.Fail(&TransportError{URL: url, Err: err})
		return
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.cfg.Client.Do(req)
	if err != nil {
		c.failTransport(ctx, err)
		return
	}
	defer iox.DiscardClose(resp.Body)
	body := iox.NewCountingReader(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.tracker.Fail(&TransportError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("status %s", resp.Status),
		})
		return
	}

	buf := make([]byte, c.cfg.FragmentSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			seq, err := c.tracker.Issue()
			if err != nil {
				return
			}
			c.cfg.Metrics.IncChunkIssued()
			c.cfg.Metrics.AddBytesReceived(int64(n))
			if err := c.writer.Write(ctx, c.res.ID, seq, buf[:n], c.tracker); err != nil {
				if ctx.Err() != nil {
					c.tracker.Fail(ErrCancelled)
				} else {
					c.tracker.Fail(&PersistenceError{Key: types.ChunkKey(c.res.ID, seq), Seq: seq, Err: err})
				}
				return
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			c.logger.Debug("stream aborted", map[string]any{"bytes": body.N()})
			c.failTransport(ctx, readErr)
			return
		}
	}

	mediaType, source := ResolveMediaType(resp.Header.Get("Content-Type"), url)
	if source == SourceDefault {
		c.logger.Warn("media type unresolved, using default", map[string]any{
			"content_type": resp.Header.Get("Content-Type"),
			"media_type":   mediaType,
		})
	}
	c.mu.Lock()
	c.res.MediaType = mediaType
	c.mu.Unlock()

	c.logger.Debug("end of stream", map[string]any{
		"bytes":      body.N(),
		"media_type": mediaType,
		"source":     string(source),
	})
	_ = c.tracker.End(mediaType)
}

// failTransport fails the tracker with a TransportError, or with
// ErrCancelled when err is the result of the request context ending.
func (c *Controller) failTransport(ctx context.Context, err error) {
	if ctx.Err() != nil {
		c.tracker.Fail(ErrCancelled)
		return
	}
	c.tracker.Fail(&TransportError{URL: c.res.EnclosureURL, Err: err})
}

// watch fails the download once it has been idle for timeout.
func (c *Controller) watch(timeout time.Duration) {
	interval := max(timeout/4, 10*time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.tracker.Done():
			return
		case <-ticker.C:
			if c.tracker.Idle() >= timeout {
				c.tracker.Fail(ErrStalled)
				return
			}
		}
	}
}

// Cancel aborts the download. In-flight chunk writes complete; chunks
// already written stay in place. Cancelling a finished download is a
// no-op.
func (c *Controller) Cancel() {
	c.tracker.Fail(ErrCancelled)
}

func (c *Controller) onComplete(info CompletionInfo) {
	c.mu.Lock()
	c.res.ChunkCount = info.ChunkCount
	c.res.MediaType = info.MediaType
	c.res.IsDownloaded = true
	snapshot := c.res.Clone()
	ctx := c.ctx
	c.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithoutCancel(ctx)

	if c.cfg.Hooks.Persist != nil {
		if err := c.cfg.Hooks.Persist(ctx, snapshot); err != nil {
			c.logger.Error("persist resource failed", map[string]any{"error": err.Error()})
			c.mu.Lock()
			c.persistErr = fmt.Errorf("persist resource %s: %w", info.ResourceID, err)
			c.mu.Unlock()
		}
	}
	if c.cfg.Hooks.Release != nil {
		c.cfg.Hooks.Release()
	}

	c.cfg.Metrics.IncDownloadCompleted()
	c.cfg.Metrics.AddDuplicateConfirms(int64(c.tracker.Snapshot().DuplicateConfirms))
	c.logger.Info("download complete", map[string]any{
		"chunk_count": info.ChunkCount,
		"media_type":  info.MediaType,
	})
	c.emit(ctx, types.EventDownloaded, nil)
	c.emit(ctx, types.EventUpdated, nil)
}

func (c *Controller) onFail(cause error) {
	c.mu.Lock()
	cancel := c.cancel
	ctx := c.ctx
	c.mu.Unlock()
	if cancel != nil {
		cancel(cause)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithoutCancel(ctx)

	if c.cfg.Hooks.Release != nil {
		c.cfg.Hooks.Release()
	}

	if errors.Is(cause, ErrCancelled) {
		c.cfg.Metrics.IncDownloadCancelled()
		c.logger.Info("download cancelled", nil)
	} else {
		c.cfg.Metrics.IncDownloadFailed()
		c.logger.Error("download failed", map[string]any{"error": cause.Error()})
	}

	var te *TransportError
	if errors.As(cause, &te) && c.cfg.Alerter != nil {
		c.cfg.Alerter.Alert(c.res.ID, AlertMessage)
	}
	c.emit(ctx, types.EventDownloadCancel, cause)
}

func (c *Controller) emit(ctx context.Context, event types.EventType, cause error) {
	if c.cfg.Emitter == nil {
		return
	}
	c.cfg.Emitter.Emit(ctx, event, c.Resource(), cause)
}
