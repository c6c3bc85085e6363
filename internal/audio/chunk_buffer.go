package audio

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrBufferSealed is returned when appending to a buffer whose session has stopped
	ErrBufferSealed = errors.New("chunk buffer is sealed")
	// ErrBufferFull is returned when the chunk or byte bound would be exceeded
	ErrBufferFull = errors.New("chunk buffer is full")
)

// ChunkBuffer accumulates encoded audio chunks in emission order.
// It is append-only until sealed; after Seal no writer may add data.
type ChunkBuffer struct {
	mu        sync.Mutex
	chunks    [][]byte
	size      int
	maxChunks int
	maxBytes  int
	sealed    bool
}

// NewChunkBuffer creates a chunk buffer. A zero bound means unbounded.
func NewChunkBuffer(maxChunks, maxBytes int) *ChunkBuffer {
	return &ChunkBuffer{
		maxChunks: maxChunks,
		maxBytes:  maxBytes,
	}
}

// Append stores a copy of chunk. Empty chunks are ignored.
func (b *ChunkBuffer) Append(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return ErrBufferSealed
	}
	if b.maxChunks > 0 && len(b.chunks) >= b.maxChunks {
		return fmt.Errorf("%w: %d chunks", ErrBufferFull, b.maxChunks)
	}
	if b.maxBytes > 0 && b.size+len(chunk) > b.maxBytes {
		return fmt.Errorf("%w: %d bytes", ErrBufferFull, b.maxBytes)
	}

	c := make([]byte, len(chunk))
	copy(c, chunk)
	b.chunks = append(b.chunks, c)
	b.size += len(c)
	return nil
}

// Len returns the number of stored chunks
func (b *ChunkBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

// Size returns the total number of stored bytes
func (b *ChunkBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Bytes returns the concatenation of all chunks
func (b *ChunkBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.concat()
}

// Seal closes the buffer to further writes and returns the concatenated payload.
// Sealing twice returns the same contents.
func (b *ChunkBuffer) Seal(mimeType string) *Payload {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sealed = true
	return &Payload{data: b.concat(), mimeType: nonEmpty(mimeType)}
}

func (b *ChunkBuffer) concat() []byte {
	out := make([]byte, 0, b.size)
	for _, c := range b.chunks {
		out = append(out, c...)
	}
	return out
}

func nonEmpty(mimeType string) string {
	if mimeType == "" {
		return MimeTypeWebM
	}
	return mimeType
}
