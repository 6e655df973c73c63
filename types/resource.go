//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Resource is one downloadable item (a podcast episode's audio).
//
// ChunkCount is zero until the download completes and fixed afterwards.
// MediaType is discovered lazily at end-of-stream.
type Resource struct {
	ID               string    `msgpack:"id" json:"id" yaml:"id"`
	PodcastID        string    `msgpack:"podcast_id,omitempty" json:"podcast_id,omitempty" yaml:"podcast_id,omitempty"`
	EnclosureURL     string    `msgpack:"enclosure" json:"enclosure" yaml:"enclosure"`
	MediaType        string    `msgpack:"type" json:"type" yaml:"type"`
	ChunkCount       int       `msgpack:"_chunk_count" json:"chunk_count" yaml:"chunk_count"`
	IsDownloaded     bool      `msgpack:"is_downloaded" json:"is_downloaded" yaml:"is_downloaded"`
	PlaybackPosition float64   `msgpack:"playback_position" json:"playback_position" yaml:"playback_position"`
	DatePublished    time.Time `msgpack:"date_published" json:"date_published" yaml:"date_published"`
}

// ErrInvalidResource is returned by Validate for malformed resources.
var ErrInvalidResource = errors.New("invalid resource")

// NewResource returns a validated, not-yet-downloaded resource.
func NewResource(id, enclosureURL string) (*Resource, error) {
	r := &Resource{ID: id, EnclosureURL: enclosureURL}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the fields the download engine depends on.
func (r *Resource) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidResource)
	}
	if r.EnclosureURL == "" {
		return fmt.Errorf("%w %s: empty enclosure url", ErrInvalidResource, r.ID)
	}
	u, err := url.Parse(r.EnclosureURL)
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrInvalidResource, r.ID, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w %s: unsupported scheme %q", ErrInvalidResource, r.ID, u.Scheme)
	}
	return nil
}

// QueueKey is the key the resource occupies in the download queue.
func (r *Resource) QueueKey() string {
	return "e" + r.ID
}

// PublishedDate formats DatePublished as a calendar date.
// Returns an empty string when the date is unknown.
func (r *Resource) PublishedDate() string {
	if r.DatePublished.IsZero() {
		return ""
	}
	return r.DatePublished.Format("2006-01-02")
}

// Clone returns a shallow copy.
func (r *Resource) Clone() *Resource {
	c := *r
	return &c
}
