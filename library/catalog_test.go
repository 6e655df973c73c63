package library

import (
	"errors"
	"testing"

	"github.com/pithecene-io/spool/store"
	"github.com/pithecene-io/spool/types"
)

func TestCatalog_SaveLoad(t *testing.T) {
	c := NewCatalog(store.NewMemory())
	r := &types.Resource{ID: "42", EnclosureURL: "https://cdn.example.com/42.mp3", ChunkCount: 7, IsDownloaded: true, MediaType: "mp3"}

	if err := c.Save(t.Context(), r); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := c.Load(t.Context(), "42")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.ChunkCount != 7 || !got.IsDownloaded || got.MediaType != "mp3" || got.EnclosureURL != r.EnclosureURL {
		t.Errorf("loaded %+v, want %+v", got, r)
	}
}

func TestCatalog_LoadMissing(t *testing.T) {
	c := NewCatalog(store.NewMemory())
	if _, err := c.Load(t.Context(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Load = %v, want ErrNotFound", err)
	}
}

func TestCatalog_ListIgnoresChunks(t *testing.T) {
	st := store.NewMemory()
	c := NewCatalog(st)
	for _, id := range []string{"b", "a"} {
		if err := c.Save(t.Context(), &types.Resource{ID: id, EnclosureURL: "https://x/" + id}); err != nil {
			t.Fatal(err)
		}
	}
	if err := st.Set(t.Context(), types.ChunkKey("a", 0), []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := st.Set(t.Context(), types.BlobKey("a"), []byte("x")); err != nil {
		t.Fatal(err)
	}

	got, err := c.List(t.Context())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("List = %+v, want records a, b", got)
	}
}

func TestCatalog_DeleteIdempotent(t *testing.T) {
	c := NewCatalog(store.NewMemory())
	if err := c.Save(t.Context(), &types.Resource{ID: "1", EnclosureURL: "https://x/1"}); err != nil {
		t.Fatal(err)
	}
	for range 2 {
		if err := c.Delete(t.Context(), "1"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
	}
	if _, err := c.Load(t.Context(), "1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Load after delete = %v, want ErrNotFound", err)
	}
}
