// Package adapter fans resource lifecycle notifications out to
// in-process subscribers and downstream systems.
//
// Subscribers are called synchronously in registration order. Downstream
// adapters are published to from a single background worker, so a slow
// webhook never blocks a download; their failures are logged and
// dropped.
package adapter

import (
	"context"
	"time"

	"github.com/pithecene-io/spool/types"
)

// Event is the notification payload.
type Event struct {
	SchemaVersion string `json:"schema_version"`
	EventType     string `json:"event_type"`
	ResourceID    string `json:"resource_id"`
	PodcastID     string `json:"podcast_id,omitempty"`
	EnclosureURL  string `json:"enclosure_url,omitempty"`
	MediaType     string `json:"media_type,omitempty"`
	ChunkCount    int    `json:"chunk_count"`
	IsDownloaded  bool   `json:"is_downloaded"`
	Error         string `json:"error,omitempty"`
	Timestamp     string `json:"timestamp"` // RFC 3339
}

// NewEvent builds the payload for one notification about r.
func NewEvent(eventType types.EventType, r *types.Resource, cause error, at time.Time) *Event {
	e := &Event{
		SchemaVersion: types.SchemaVersion,
		EventType:     string(eventType),
		Timestamp:     at.UTC().Format(time.RFC3339Nano),
	}
	if r != nil {
		e.ResourceID = r.ID
		e.PodcastID = r.PodcastID
		e.EnclosureURL = r.EnclosureURL
		e.MediaType = r.MediaType
		e.ChunkCount = r.ChunkCount
		e.IsDownloaded = r.IsDownloaded
	}
	if cause != nil {
		e.Error = cause.Error()
	}
	return e
}

// Adapter publishes events to a downstream system.
type Adapter interface {
	// Publish sends one event. Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *Event) error

	// Close releases adapter resources.
	Close() error
}
