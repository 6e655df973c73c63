package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/spool/adapter"
	"github.com/pithecene-io/spool/cli/render"
	"github.com/pithecene-io/spool/cli/tui"
	"github.com/pithecene-io/spool/download"
	"github.com/pithecene-io/spool/library"
	"github.com/pithecene-io/spool/metrics"
	"github.com/pithecene-io/spool/types"
)

const (
	// notifyTimeout bounds how long fetch waits for queued notifications.
	notifyTimeout = 10 * time.Second
	// settleTimeout bounds the wait for completion hooks after the queue
	// has drained.
	settleTimeout = 5 * time.Second
)

// FetchResult is the outcome of one downloaded enclosure.
type FetchResult struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	State      string `json:"state"`
	ChunkCount int    `json:"chunk_count"`
	MediaType  string `json:"media_type,omitempty"`
	Error      string `json:"error,omitempty"`
}

// FetchResponse is the response for the fetch command.
type FetchResponse struct {
	Downloads []FetchResult    `json:"downloads"`
	Metrics   metrics.Snapshot `json:"metrics"`
}

// FetchCommand returns the fetch command.
func FetchCommand() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Download enclosure URLs into the chunk store",
		ArgsUsage: "URL...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "id",
				Usage: "Resource ID (single URL only; default: random UUID)",
			},
			&cli.StringFlag{
				Name:  "podcast",
				Usage: "Podcast ID recorded on each resource",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show live progress bars",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress result output",
			},
		},
		Action: fetchAction,
	}
}

// outcomes records the terminal notification of each resource.
type outcomes struct {
	mu      sync.Mutex
	byID    map[string]*adapter.Event
	want    int
	settled chan struct{}
}

func newOutcomes(want int) *outcomes {
	return &outcomes{byID: make(map[string]*adapter.Event), want: want, settled: make(chan struct{})}
}

func (o *outcomes) record(e *adapter.Event) {
	if !types.EventType(e.EventType).IsTerminal() {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, seen := o.byID[e.ResourceID]; seen {
		return
	}
	o.byID[e.ResourceID] = e
	if len(o.byID) == o.want {
		close(o.settled)
	}
}

// wait blocks until every resource has a terminal notification or
// timeout elapses.
func (o *outcomes) wait(timeout time.Duration) {
	select {
	case <-o.settled:
	case <-time.After(timeout):
	}
}

func (o *outcomes) get(id string) (*adapter.Event, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.byID[id]
	return e, ok
}

// snapshot returns id's live tracker snapshot, or one derived from its
// terminal notification once the download has finished.
func (o *outcomes) snapshot(m *library.Manager, id string) download.TrackerSnapshot {
	if e, ok := o.get(id); ok {
		s := download.TrackerSnapshot{ResourceID: id, State: download.StateFailed, Err: e.Error}
		if e.EventType == string(types.EventDownloaded) {
			s = download.TrackerSnapshot{
				ResourceID:      id,
				State:           download.StateComplete,
				Issued:          e.ChunkCount,
				Confirmed:       e.ChunkCount,
				TotalChunkCount: e.ChunkCount,
				MediaType:       e.MediaType,
			}
		}
		return s
	}
	if s, ok := m.Status(id); ok {
		return s
	}
	return download.TrackerSnapshot{ResourceID: id, State: download.StateIdle, TotalChunkCount: -1}
}

func parseResources(c *cli.Context) ([]*types.Resource, error) {
	urls := c.Args().Slice()
	if len(urls) == 0 {
		return nil, fmt.Errorf("at least one URL is required")
	}
	if c.IsSet("id") && len(urls) > 1 {
		return nil, fmt.Errorf("--id requires exactly one URL")
	}
	resources := make([]*types.Resource, 0, len(urls))
	for _, u := range urls {
		id := c.String("id")
		if id == "" {
			id = uuid.NewString()
		}
		r, err := types.NewResource(id, u)
		if err != nil {
			return nil, err
		}
		r.PodcastID = c.String("podcast")
		resources = append(resources, r)
	}
	return resources, nil
}

func fetchAction(c *cli.Context) error {
	resources, err := parseResources(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.close()

	if c.Bool("tui") {
		// JSON log lines would tear the progress view.
		e.logger = e.logger.WithOutput(io.Discard)
	}

	var adapters []adapter.Adapter
	a, err := newAdapter(e.cfg.Adapter)
	if err != nil {
		return cli.Exit(fmt.Sprintf("adapter: %v", err), exitUsage)
	}
	if a != nil {
		adapters = append(adapters, a)
	}
	bus := adapter.NewBus(e.logger, adapters...)
	defer e.closeBus(bus, notifyTimeout)

	done := newOutcomes(len(resources))
	bus.Subscribe(done.record)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := e.newManager(bus)
	runCtx, cancelRun := context.WithCancel(ctx)
	m.Start(runCtx)
	defer func() {
		cancelRun()
		m.Shutdown()
	}()

	for _, r := range resources {
		if err := m.Enqueue(ctx, r); err != nil {
			return storageExit(fmt.Errorf("enqueue %s: %w", r.ID, err), exitDownloadFailure)
		}
	}

	if c.Bool("tui") {
		aborted, err := tui.RunProgress(ctx, os.Stderr, func() []download.TrackerSnapshot {
			snaps := make([]download.TrackerSnapshot, len(resources))
			for i, r := range resources {
				snaps[i] = done.snapshot(m, r.ID)
			}
			return snaps
		})
		if err != nil {
			e.logger.Warn("progress view failed", map[string]any{"error": err.Error()})
		}
		if aborted {
			for _, r := range resources {
				m.Cancel(r.ID)
			}
		}
	}

	if err := m.Wait(ctx); err != nil {
		// Interrupted: cancel what is left and wait for it to settle.
		for _, r := range resources {
			m.Cancel(r.ID)
		}
		_ = m.Wait(context.Background())
	}
	done.wait(settleTimeout)

	resp := FetchResponse{Metrics: e.metrics.Snapshot()}
	failed := 0
	for _, r := range resources {
		s := done.snapshot(m, r.ID)
		res := FetchResult{ID: r.ID, URL: r.EnclosureURL, State: string(s.State), MediaType: s.MediaType, Error: s.Err}
		if s.State == download.StateComplete {
			res.ChunkCount = s.TotalChunkCount
		} else {
			failed++
		}
		resp.Downloads = append(resp.Downloads, res)
	}

	if !c.Bool("quiet") {
		if err := renderFetch(e.renderer, resp); err != nil {
			return err
		}
	}
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d downloads failed", failed, len(resources)), exitDownloadFailure)
	}
	return nil
}

func renderFetch(r *render.Renderer, resp FetchResponse) error {
	if r.Format() != render.FormatTable {
		return r.Render(resp)
	}
	if err := r.Render(resp.Downloads); err != nil {
		return err
	}
	fmt.Println()
	return r.Render(resp.Metrics)
}
