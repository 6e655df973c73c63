// Package metrics provides per-process download metrics.
//
// The Collector accumulates counters for the lifetime of a CLI invocation
// or a long-running manager. It is a leaf package with no internal
// dependencies.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Download lifecycle
	DownloadsQueued    int64 `json:"downloads_queued"`
	DownloadsStarted   int64 `json:"downloads_started"`
	DownloadsCompleted int64 `json:"downloads_completed"`
	DownloadsFailed    int64 `json:"downloads_failed"`
	DownloadsCancelled int64 `json:"downloads_cancelled"`

	// Chunks
	ChunksIssued       int64 `json:"chunks_issued"`
	ChunksConfirmed    int64 `json:"chunks_confirmed"`
	ChunkWriteFailures int64 `json:"chunk_write_failures"`
	DuplicateConfirms  int64 `json:"duplicate_confirms"`
	BytesReceived      int64 `json:"bytes_received"`

	// Store
	StoreWriteSuccess int64 `json:"store_write_success"`
	StoreWriteFailure int64 `json:"store_write_failure"`

	// Reassembly
	AssembliesSucceeded int64 `json:"assemblies_succeeded"`
	AssembliesFailed    int64 `json:"assemblies_failed"`
	BytesAssembled      int64 `json:"bytes_assembled"`

	// Dimensions (informational, set at construction)
	StorageBackend string `json:"storage_backend"`
}

// Collector accumulates metrics.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	downloadsQueued    int64
	downloadsStarted   int64
	downloadsCompleted int64
	downloadsFailed    int64
	downloadsCancelled int64

	chunksIssued       int64
	chunksConfirmed    int64
	chunkWriteFailures int64
	duplicateConfirms  int64
	bytesReceived      int64

	storeWriteSuccess int64
	storeWriteFailure int64

	assembliesSucceeded int64
	assembliesFailed    int64
	bytesAssembled      int64

	storageBackend string
}

// NewCollector creates a Collector labelled with the storage backend name.
func NewCollector(storageBackend string) *Collector {
	return &Collector{storageBackend: storageBackend}
}

func (c *Collector) add(field *int64, n int64) {
	c.mu.Lock()
	*field += n
	c.mu.Unlock()
}

// --- Download lifecycle ---

// IncDownloadQueued records a resource entering the download queue.
func (c *Collector) IncDownloadQueued() {
	if c == nil {
		return
	}
	c.add(&c.downloadsQueued, 1)
}

// IncDownloadStarted records a controller starting its HTTP request.
func (c *Collector) IncDownloadStarted() {
	if c == nil {
		return
	}
	c.add(&c.downloadsStarted, 1)
}

// IncDownloadCompleted records a tracker reaching complete.
func (c *Collector) IncDownloadCompleted() {
	if c == nil {
		return
	}
	c.add(&c.downloadsCompleted, 1)
}

// IncDownloadFailed records a transport, persistence or stall failure.
func (c *Collector) IncDownloadFailed() {
	if c == nil {
		return
	}
	c.add(&c.downloadsFailed, 1)
}

// IncDownloadCancelled records a user-initiated cancel.
func (c *Collector) IncDownloadCancelled() {
	if c == nil {
		return
	}
	c.add(&c.downloadsCancelled, 1)
}

// --- Chunks ---

// IncChunkIssued records a fragment assigned a sequence index.
func (c *Collector) IncChunkIssued() {
	if c == nil {
		return
	}
	c.add(&c.chunksIssued, 1)
}

// IncChunkConfirmed records a durable chunk write confirmation.
func (c *Collector) IncChunkConfirmed() {
	if c == nil {
		return
	}
	c.add(&c.chunksConfirmed, 1)
}

// IncChunkWriteFailure records a failed chunk write.
func (c *Collector) IncChunkWriteFailure() {
	if c == nil {
		return
	}
	c.add(&c.chunkWriteFailures, 1)
}

// AddDuplicateConfirms records ignored confirmations for unknown or
// already-confirmed sequence indices.
func (c *Collector) AddDuplicateConfirms(n int64) {
	if c == nil || n == 0 {
		return
	}
	c.add(&c.duplicateConfirms, n)
}

// AddBytesReceived records payload bytes read from the network.
func (c *Collector) AddBytesReceived(n int64) {
	if c == nil {
		return
	}
	c.add(&c.bytesReceived, n)
}

// --- Store ---
// Store counters are per Set call.

// IncStoreWriteSuccess records a successful store write.
func (c *Collector) IncStoreWriteSuccess() {
	if c == nil {
		return
	}
	c.add(&c.storeWriteSuccess, 1)
}

// IncStoreWriteFailure records a failed store write.
func (c *Collector) IncStoreWriteFailure() {
	if c == nil {
		return
	}
	c.add(&c.storeWriteFailure, 1)
}

// --- Reassembly ---

// RecordAssembly records the outcome of one reassembly and its size.
func (c *Collector) RecordAssembly(bytes int64, err error) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.assembliesFailed++
		return
	}
	c.assembliesSucceeded++
	c.bytesAssembled += bytes
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		DownloadsQueued:    c.downloadsQueued,
		DownloadsStarted:   c.downloadsStarted,
		DownloadsCompleted: c.downloadsCompleted,
		DownloadsFailed:    c.downloadsFailed,
		DownloadsCancelled: c.downloadsCancelled,

		ChunksIssued:       c.chunksIssued,
		ChunksConfirmed:    c.chunksConfirmed,
		ChunkWriteFailures: c.chunkWriteFailures,
		DuplicateConfirms:  c.duplicateConfirms,
		BytesReceived:      c.bytesReceived,

		StoreWriteSuccess: c.storeWriteSuccess,
		StoreWriteFailure: c.storeWriteFailure,

		AssembliesSucceeded: c.assembliesSucceeded,
		AssembliesFailed:    c.assembliesFailed,
		BytesAssembled:      c.bytesAssembled,

		StorageBackend: c.storageBackend,
	}
}
