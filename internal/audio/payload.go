package audio

import (
	"bytes"
	"io"
)

// MimeTypeWebM is the container every captured payload is tagged with
const MimeTypeWebM = "audio/webm"

// Payload is the finalized audio produced when a recording session stops.
// It is immutable once created.
type Payload struct {
	data     []byte
	mimeType string
}

// NewPayload creates a payload from a copy of data
func NewPayload(data []byte, mimeType string) *Payload {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Payload{data: buf, mimeType: nonEmpty(mimeType)}
}

// Bytes returns a copy of the payload contents
func (p *Payload) Bytes() []byte {
	out := make([]byte, len(p.data))
	copy(out, p.data)
	return out
}

// Size returns the payload length in bytes
func (p *Payload) Size() int {
	return len(p.data)
}

// MimeType returns the payload's content type
func (p *Payload) MimeType() string {
	return p.mimeType
}

// Reader returns a fresh reader over the payload
func (p *Payload) Reader() io.Reader {
	return bytes.NewReader(p.data)
}
