package download

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pithecene-io/spool/metrics"
	"github.com/pithecene-io/spool/store"
	"github.com/pithecene-io/spool/types"
)

// streamHandler writes parts one flush at a time.
func streamHandler(contentType string, parts ...[]byte) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if contentType == "" {
			// Suppress Content-Type sniffing.
			w.Header()["Content-Type"] = nil
		} else {
			w.Header().Set("Content-Type", contentType)
		}
		flusher := w.(http.Flusher)
		for _, p := range parts {
			_, _ = w.Write(p)
			flusher.Flush()
		}
	}
}

// hangingHandler writes one part, then blocks until the client goes away.
func hangingHandler(part []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(part)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}
}

type harness struct {
	store    store.Store
	emitter  *recordingEmitter
	metrics  *metrics.Collector
	alerts   []string
	alertsMu sync.Mutex
	persists atomic.Int32
	releases atomic.Int32
	saved    atomic.Pointer[types.Resource]
}

func newHarness() *harness {
	return &harness{
		store:   store.NewMemory(),
		emitter: &recordingEmitter{},
		metrics: metrics.NewCollector("memory"),
	}
}

func (h *harness) config() ControllerConfig {
	return ControllerConfig{
		FragmentSize: 8,
		Emitter:      h.emitter,
		Metrics:      h.metrics,
		Alerter: AlertFunc(func(_, msg string) {
			h.alertsMu.Lock()
			h.alerts = append(h.alerts, msg)
			h.alertsMu.Unlock()
		}),
		Hooks: Hooks{
			Persist: func(_ context.Context, r *types.Resource) error {
				h.persists.Add(1)
				h.saved.Store(r)
				return nil
			},
			Release: func() { h.releases.Add(1) },
		},
	}
}

func (h *harness) alertCount() int {
	h.alertsMu.Lock()
	defer h.alertsMu.Unlock()
	return len(h.alerts)
}

func newResource(t *testing.T, id, url string) *types.Resource {
	t.Helper()
	r, err := types.NewResource(id, url)
	if err != nil {
		t.Fatalf("NewResource: %v", err)
	}
	return r
}

// waitIssued polls until the tracker has issued at least n chunks.
func waitIssued(t *testing.T, tr *Tracker, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for tr.Snapshot().Issued < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d issued chunks", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// waitStored polls until key is present in st.
func waitStored(t *testing.T, st store.Store, key string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := st.Get(t.Context(), key); err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", key)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestController_DownloadsAndCompletes(t *testing.T) {
	parts := [][]byte{
		[]byte("ID3\x03\x00first-part"),
		[]byte("second"),
		bytes.Repeat([]byte{0xff, 0xfb}, 20),
	}
	srv := httptest.NewServer(streamHandler("audio/mpeg", parts...))
	defer srv.Close()

	h := newHarness()
	c := NewController(newResource(t, "42", srv.URL+"/ep.ogg"), h.store, h.config())
	if err := c.Run(t.Context()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	r := c.Resource()
	if !r.IsDownloaded {
		t.Error("IsDownloaded = false")
	}
	if r.MediaType != "mp3" {
		t.Errorf("MediaType = %q, want mp3 (declared type wins over URL)", r.MediaType)
	}
	if r.ChunkCount < 1 {
		t.Fatalf("ChunkCount = %d", r.ChunkCount)
	}

	keys, err := h.store.List(t.Context(), types.ChunkKeyPrefix("42"))
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != r.ChunkCount {
		t.Errorf("stored %d chunks, ChunkCount = %d", len(keys), r.ChunkCount)
	}
	got, err := readChunks(t.Context(), h.store, "42", r.ChunkCount)
	if err != nil {
		t.Fatal(err)
	}
	if want := slices.Concat(parts...); !bytes.Equal(got, want) {
		t.Errorf("reassembled %q, want %q", got, want)
	}

	wantEvents := []types.EventType{types.EventDownloadStarted, types.EventDownloaded, types.EventUpdated}
	if ev := h.emitter.Events(); !slices.Equal(ev, wantEvents) {
		t.Errorf("events = %v, want %v", ev, wantEvents)
	}
	if h.persists.Load() != 1 || h.releases.Load() != 1 {
		t.Errorf("persist/release = %d/%d, want 1/1", h.persists.Load(), h.releases.Load())
	}
	if saved := h.saved.Load(); saved == nil || !saved.IsDownloaded || saved.ChunkCount != r.ChunkCount {
		t.Errorf("persisted resource = %+v", saved)
	}
	if s := h.metrics.Snapshot(); s.DownloadsCompleted != 1 || s.BytesReceived != int64(len(slices.Concat(parts...))) {
		t.Errorf("metrics = %+v", s)
	}
	if h.alertCount() != 0 {
		t.Error("alert raised on success")
	}
}

func TestController_MediaTypeFromURL(t *testing.T) {
	srv := httptest.NewServer(streamHandler("", []byte("OggS-payload")))
	defer srv.Close()

	h := newHarness()
	c := NewController(newResource(t, "7", srv.URL+"/feeds/episode42.ogg?x=1"), h.store, h.config())
	if err := c.Run(t.Context()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if mt := c.Resource().MediaType; mt != "ogg" {
		t.Errorf("MediaType = %q, want ogg", mt)
	}
}

func TestController_EmptyBodyCompletes(t *testing.T) {
	srv := httptest.NewServer(streamHandler("audio/ogg"))
	defer srv.Close()

	h := newHarness()
	c := NewController(newResource(t, "e", srv.URL+"/empty"), h.store, h.config())
	if err := c.Run(t.Context()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r := c.Resource(); !r.IsDownloaded || r.ChunkCount != 0 {
		t.Errorf("resource = %+v", r)
	}
}

func TestController_HTTPStatusIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	h := newHarness()
	c := NewController(newResource(t, "1", srv.URL+"/ep.mp3"), h.store, h.config())
	err := c.Run(t.Context())

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Run = %v, want *TransportError", err)
	}
	if te.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", te.StatusCode)
	}
	if c.Resource().IsDownloaded {
		t.Error("IsDownloaded = true after failure")
	}
	if h.alertCount() != 1 || h.alerts[0] != AlertMessage {
		t.Errorf("alerts = %v, want [%q]", h.alerts, AlertMessage)
	}
	wantEvents := []types.EventType{types.EventDownloadStarted, types.EventDownloadCancel}
	if ev := h.emitter.Events(); !slices.Equal(ev, wantEvents) {
		t.Errorf("events = %v, want %v", ev, wantEvents)
	}
	if h.releases.Load() != 1 || h.persists.Load() != 0 {
		t.Errorf("persist/release = %d/%d, want 0/1", h.persists.Load(), h.releases.Load())
	}
}

func TestController_StreamErrorMidBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Content-Length", "1000")
		_, _ = w.Write([]byte("partial-data"))
		w.(http.Flusher).Flush()
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			_ = conn.Close()
		}
	}))
	defer srv.Close()

	h := newHarness()
	c := NewController(newResource(t, "1", srv.URL+"/ep.mp3"), h.store, h.config())
	err := c.Run(t.Context())

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Run = %v, want *TransportError", err)
	}
	if c.Tracker().State() != StateFailed {
		t.Errorf("state = %s, want failed", c.Tracker().State())
	}
	if h.alertCount() != 1 {
		t.Errorf("alerts = %d, want 1", h.alertCount())
	}
	// Chunks written before the error stay for caller cleanup.
	keys, _ := h.store.List(t.Context(), types.ChunkKeyPrefix("1"))
	if len(keys) == 0 {
		t.Error("expected written chunks to remain after stream error")
	}
}

func TestController_Cancel(t *testing.T) {
	srv := httptest.NewServer(hangingHandler([]byte("first")))
	defer srv.Close()

	h := newHarness()
	c := NewController(newResource(t, "c", srv.URL+"/ep.mp3"), h.store, h.config())

	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(t.Context()) }()

	waitStored(t, h.store, types.ChunkKey("c", 0))
	c.Cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrCancelled) {
			t.Errorf("Run = %v, want ErrCancelled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Cancel")
	}

	if h.alertCount() != 0 {
		t.Error("cancel raised a transport alert")
	}
	if _, err := h.store.Get(t.Context(), types.ChunkKey("c", 0)); err != nil {
		t.Errorf("chunk 0 removed by cancel: %v", err)
	}
	if s := h.metrics.Snapshot(); s.DownloadsCancelled != 1 {
		t.Errorf("DownloadsCancelled = %d, want 1", s.DownloadsCancelled)
	}
	// Cancel after the fact is a no-op.
	c.Cancel()
	if h.releases.Load() != 1 {
		t.Errorf("releases = %d, want 1", h.releases.Load())
	}
}

func TestController_ParentContextCancel(t *testing.T) {
	srv := httptest.NewServer(hangingHandler([]byte("first")))
	defer srv.Close()

	h := newHarness()
	c := NewController(newResource(t, "p", srv.URL+"/ep.mp3"), h.store, h.config())

	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()
	waitIssued(t, c.Tracker(), 1)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrCancelled) {
			t.Errorf("Run = %v, want ErrCancelled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancel")
	}
}

func TestController_CancelBeforeRun(t *testing.T) {
	h := newHarness()
	c := NewController(newResource(t, "b", "http://127.0.0.1:1/ep.mp3"), h.store, h.config())
	c.Cancel()
	if err := c.Run(t.Context()); !errors.Is(err, ErrCancelled) {
		t.Errorf("Run = %v, want ErrCancelled", err)
	}
}

func TestController_Stall(t *testing.T) {
	srv := httptest.NewServer(hangingHandler([]byte("first")))
	defer srv.Close()

	h := newHarness()
	cfg := h.config()
	cfg.StallTimeout = 100 * time.Millisecond
	c := NewController(newResource(t, "s", srv.URL+"/ep.mp3"), h.store, cfg)

	err := c.Run(t.Context())
	if !errors.Is(err, ErrStalled) {
		t.Fatalf("Run = %v, want ErrStalled", err)
	}
	if h.alertCount() != 0 {
		t.Error("stall raised a transport alert")
	}
}

func TestController_PersistenceFailure(t *testing.T) {
	srv := httptest.NewServer(streamHandler("audio/mpeg", []byte("abc")))
	defer srv.Close()

	h := newHarness()
	h.store = &failingStore{Memory: store.NewMemory(), err: errDiskFull}
	c := NewController(newResource(t, "f", srv.URL+"/ep.mp3"), h.store, h.config())

	err := c.Run(t.Context())
	var pe *PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("Run = %v, want *PersistenceError", err)
	}
	if c.Resource().IsDownloaded {
		t.Error("IsDownloaded = true after persistence failure")
	}
	if h.alertCount() != 0 {
		t.Error("persistence failure raised a transport alert")
	}
}

func TestController_AlreadyDownloading(t *testing.T) {
	srv := httptest.NewServer(hangingHandler([]byte("first")))
	defer srv.Close()

	h := newHarness()
	c := NewController(newResource(t, "d", srv.URL+"/ep.mp3"), h.store, h.config())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(t.Context()) }()
	waitIssued(t, c.Tracker(), 1)

	if err := c.Run(t.Context()); !errors.Is(err, ErrAlreadyDownloading) {
		t.Errorf("second Run = %v, want ErrAlreadyDownloading", err)
	}
	c.Cancel()
	<-errCh
}

func TestController_UserAgent(t *testing.T) {
	var gotUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.UserAgent())
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	h := newHarness()
	cfg := h.config()
	cfg.UserAgent = "spool/test"
	c := NewController(newResource(t, "u", srv.URL+"/ep.mp3"), h.store, cfg)
	if err := c.Run(t.Context()); err != nil {
		t.Fatal(err)
	}
	if gotUA.Load() != "spool/test" {
		t.Errorf("User-Agent = %v", gotUA.Load())
	}
}
