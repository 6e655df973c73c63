package download

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/pithecene-io/spool/metrics"
	"github.com/pithecene-io/spool/store"
	"github.com/pithecene-io/spool/types"
)

func TestChunkWriter_PersistsAndConfirms(t *testing.T) {
	st := store.NewMemory()
	m := metrics.NewCollector("memory")
	w := NewChunkWriter(st, WriterConfig{Metrics: m})
	c := newRecordingConfirmer(5)

	buf := make([]byte, 3)
	for seq := range 5 {
		// Reuse one buffer to check Write does not retain it.
		for i := range buf {
			buf[i] = byte(seq)
		}
		if err := w.Write(t.Context(), "ep", seq, buf, c); err != nil {
			t.Fatalf("Write(%d): %v", seq, err)
		}
	}
	w.Wait()

	slices.Sort(c.confirmed)
	if !slices.Equal(c.confirmed, []int{0, 1, 2, 3, 4}) {
		t.Errorf("confirmed = %v", c.confirmed)
	}
	for seq := range 5 {
		b, err := st.Get(t.Context(), types.ChunkKey("ep", seq))
		if err != nil {
			t.Fatalf("Get chunk %d: %v", seq, err)
		}
		rec, err := types.DecodeChunk(b)
		if err != nil {
			t.Fatal(err)
		}
		if rec.Seq != seq || rec.ResourceID != "ep" || !slices.Equal(rec.Data, []byte{byte(seq), byte(seq), byte(seq)}) {
			t.Errorf("chunk %d = %+v", seq, rec)
		}
	}
	if s := m.Snapshot(); s.StoreWriteSuccess != 5 || s.ChunksConfirmed != 5 {
		t.Errorf("metrics = %+v", s)
	}
}

func TestChunkWriter_FailureReportsPersistenceError(t *testing.T) {
	st := &failingStore{Memory: store.NewMemory(), err: errDiskFull}
	w := NewChunkWriter(st, WriterConfig{})
	c := newRecordingConfirmer(1)

	if err := w.Write(t.Context(), "ep", 7, []byte("x"), c); err != nil {
		t.Fatal(err)
	}
	w.Wait()

	if len(c.confirmed) != 0 {
		t.Errorf("confirmed = %v, want none", c.confirmed)
	}
	if len(c.failures) != 1 {
		t.Fatalf("failures = %v, want 1", c.failures)
	}
	var pe *PersistenceError
	if !errors.As(c.failures[0], &pe) {
		t.Fatalf("failure %v is not a *PersistenceError", c.failures[0])
	}
	if pe.Seq != 7 || pe.Key != "_chunk-episode-ep-7" || !errors.Is(pe, errDiskFull) {
		t.Errorf("PersistenceError = %+v", pe)
	}
}

func TestChunkWriter_ConfirmsOnlyAfterStore(t *testing.T) {
	st := newGatedStore()
	w := NewChunkWriter(st, WriterConfig{})
	c := newRecordingConfirmer(1)

	if err := w.Write(t.Context(), "ep", 0, []byte("x"), c); err != nil {
		t.Fatal(err)
	}
	<-st.entered
	c.mu.Lock()
	early := len(c.confirmed)
	c.mu.Unlock()
	if early != 0 {
		t.Fatal("confirmed before store accepted the write")
	}
	close(st.release)
	<-c.done
	w.Wait()
}

func TestChunkWriter_BoundsInFlight(t *testing.T) {
	st := newGatedStore()
	w := NewChunkWriter(st, WriterConfig{MaxInFlight: 2})
	c := newRecordingConfirmer(2)

	for seq := range 2 {
		if err := w.Write(t.Context(), "ep", seq, []byte("x"), c); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	if err := w.Write(ctx, "ep", 2, []byte("x"), c); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("third Write = %v, want DeadlineExceeded", err)
	}

	close(st.release)
	<-c.done
	w.Wait()
	if len(c.confirmed) != 2 {
		t.Errorf("confirmed = %v, want 2 chunks", c.confirmed)
	}
}

func TestChunkWriter_TrackerIntegration(t *testing.T) {
	st := store.NewMemory()
	w := NewChunkWriter(st, WriterConfig{MaxInFlight: 4})
	tr := NewTracker("ep")
	_ = tr.Start()

	for range 20 {
		seq, err := tr.Issue()
		if err != nil {
			t.Fatal(err)
		}
		if err := w.Write(t.Context(), "ep", seq, []byte{byte(seq)}, tr); err != nil {
			t.Fatal(err)
		}
	}
	_ = tr.End("mp3")

	select {
	case <-tr.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("tracker did not complete")
	}
	w.Wait()
	got, err := readChunks(t.Context(), st, "ep", 20)
	if err != nil {
		t.Fatal(err)
	}
	for i, b := range got {
		if b != byte(i) {
			t.Fatalf("byte %d = %d", i, b)
		}
	}
}
