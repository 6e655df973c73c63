//nolint:revive // types is a common Go package naming convention
package types

import (
	"strconv"
	"strings"
)

const (
	chunkKeyPrefix    = "_chunk-episode-"
	resourceKeyPrefix = "_resource-"
)

// ChunkRecord is the persisted form of one chunk.
// Data keeps the "file" field name of the stored chunk object.
type ChunkRecord struct {
	ResourceID string `msgpack:"resource_id"`
	Seq        int    `msgpack:"seq"`
	Data       []byte `msgpack:"file"`
}

// ChunkKey is the store key for chunk seq of a resource.
// Format: _chunk-episode-<resourceID>-<seq>
func ChunkKey(resourceID string, seq int) string {
	return ChunkKeyPrefix(resourceID) + strconv.Itoa(seq)
}

// ChunkKeyPrefix is the common prefix of every chunk key of a resource.
func ChunkKeyPrefix(resourceID string) string {
	return chunkKeyPrefix + resourceID + "-"
}

// ParseChunkKey returns the sequence index encoded in key if key is a
// chunk key of resourceID. Keys of other resources whose IDs share a
// prefix with resourceID are rejected.
func ParseChunkKey(resourceID, key string) (int, bool) {
	rest, ok := strings.CutPrefix(key, ChunkKeyPrefix(resourceID))
	if !ok || rest == "" {
		return 0, false
	}
	seq, err := strconv.Atoi(rest)
	if err != nil || seq < 0 || strconv.Itoa(seq) != rest {
		return 0, false
	}
	return seq, true
}

// BlobKey is the store key of the reassembled blob cache.
func BlobKey(resourceID string) string {
	return resourceID
}

// ResourceKey is the store key of the persisted Resource record.
func ResourceKey(resourceID string) string {
	return resourceKeyPrefix + resourceID
}

// BlobRecord is the persisted form of a reassembled blob cache entry.
type BlobRecord struct {
	ResourceID string `msgpack:"resource_id"`
	MediaType  string `msgpack:"type"`
	Data       []byte `msgpack:"file"`
}
