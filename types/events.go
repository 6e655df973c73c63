// Package types defines the core domain types of spool: resources, chunk
// records, store keys and lifecycle notifications.
//
//nolint:revive // types is a common Go package naming convention
package types

// SchemaVersion is the notification schema version.
// Lockstep with Version.
const SchemaVersion = Version

// EventType names a lifecycle notification emitted for a resource.
type EventType string

// Lifecycle notifications, named the way subscribers have always seen them.
const (
	EventDownloadQueued  EventType = "download:queued"
	EventDownloadStarted EventType = "download:started"
	EventDownloadCancel  EventType = "download:cancel"
	EventDownloaded      EventType = "downloaded"
	EventUpdated         EventType = "updated"
)

// IsTerminal returns true if no further download notifications follow
// this one for the current attempt.
func (e EventType) IsTerminal() bool {
	return e == EventDownloaded || e == EventDownloadCancel
}
