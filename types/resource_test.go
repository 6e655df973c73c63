package types //nolint:revive // types is a valid package name

import (
	"errors"
	"testing"
	"time"
)

func TestNewResource_Validation(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		url     string
		wantErr bool
	}{
		{"valid https", "1", "https://cdn.example.com/ep1.mp3", false},
		{"valid http", "1", "http://cdn.example.com/ep1", false},
		{"empty id", "", "https://cdn.example.com/ep1.mp3", true},
		{"empty url", "1", "", true},
		{"ftp scheme", "1", "ftp://cdn.example.com/ep1.mp3", true},
		{"bad url", "1", "http://[::1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResource(tt.id, tt.url)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidResource) {
					t.Errorf("expected ErrInvalidResource, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestResource_QueueKey(t *testing.T) {
	r := &Resource{ID: "42"}
	if got := r.QueueKey(); got != "e42" {
		t.Errorf("QueueKey = %q, want e42", got)
	}
}

func TestResource_PublishedDate(t *testing.T) {
	r := &Resource{ID: "1"}
	if got := r.PublishedDate(); got != "" {
		t.Errorf("PublishedDate for zero time = %q, want empty", got)
	}
	r.DatePublished = time.Date(2024, 3, 9, 18, 30, 0, 0, time.UTC)
	if got := r.PublishedDate(); got != "2024-03-09" {
		t.Errorf("PublishedDate = %q, want 2024-03-09", got)
	}
}

func TestResourceCodec(t *testing.T) {
	r := &Resource{
		ID:           "7",
		PodcastID:    "p1",
		EnclosureURL: "https://cdn.example.com/7.m4a",
		MediaType:    "m4a",
		ChunkCount:   12,
		IsDownloaded: true,
	}
	b, err := EncodeResource(r)
	if err != nil {
		t.Fatalf("EncodeResource failed: %v", err)
	}
	got, err := DecodeResource(b)
	if err != nil {
		t.Fatalf("DecodeResource failed: %v", err)
	}
	if got.ID != r.ID || got.MediaType != "m4a" || got.ChunkCount != 12 || !got.IsDownloaded || got.PodcastID != "p1" {
		t.Errorf("decoded %+v, want %+v", got, r)
	}
}

func TestResource_Clone(t *testing.T) {
	r := &Resource{ID: "1", ChunkCount: 2}
	c := r.Clone()
	c.ChunkCount = 5
	if r.ChunkCount != 2 {
		t.Error("Clone shares state with original")
	}
}
