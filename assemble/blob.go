package assemble

import (
	"bytes"
	"fmt"
)

// Blob is a reassembled resource payload.
type Blob struct {
	ResourceID string
	MediaType  string
	data       []byte
}

// NewBlob wraps data. The blob takes ownership of data.
func NewBlob(resourceID, mediaType string, data []byte) *Blob {
	if data == nil {
		data = []byte{}
	}
	return &Blob{ResourceID: resourceID, MediaType: mediaType, data: data}
}

// ContentType returns the MIME type, e.g. "audio/mp3".
func (b *Blob) ContentType() string {
	return fmt.Sprintf("audio/%s", b.MediaType)
}

// Bytes returns the payload. Callers must not modify it.
func (b *Blob) Bytes() []byte { return b.data }

// Len returns the payload size in bytes.
func (b *Blob) Len() int { return len(b.data) }

// Reader returns a new reader over the payload.
func (b *Blob) Reader() *bytes.Reader { return bytes.NewReader(b.data) }
