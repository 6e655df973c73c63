//nolint:revive // types is a common Go package naming convention
package types

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// EncodeChunk encodes a chunk record for storage.
func EncodeChunk(rec *ChunkRecord) ([]byte, error) {
	b, err := msgpack.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode chunk %d of %s: %w", rec.Seq, rec.ResourceID, err)
	}
	return b, nil
}

// DecodeChunk decodes a stored chunk record.
func DecodeChunk(b []byte) (*ChunkRecord, error) {
	var rec ChunkRecord
	if err := msgpack.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decode chunk: %w", err)
	}
	return &rec, nil
}

// EncodeResource encodes a resource record for storage.
func EncodeResource(r *Resource) ([]byte, error) {
	b, err := msgpack.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode resource %s: %w", r.ID, err)
	}
	return b, nil
}

// DecodeResource decodes a stored resource record.
func DecodeResource(b []byte) (*Resource, error) {
	var r Resource
	if err := msgpack.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode resource: %w", err)
	}
	return &r, nil
}

// EncodeBlob encodes a blob cache record for storage.
func EncodeBlob(rec *BlobRecord) ([]byte, error) {
	b, err := msgpack.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode blob %s: %w", rec.ResourceID, err)
	}
	return b, nil
}

// DecodeBlob decodes a stored blob cache record.
func DecodeBlob(b []byte) (*BlobRecord, error) {
	var rec BlobRecord
	if err := msgpack.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decode blob: %w", err)
	}
	return &rec, nil
}
