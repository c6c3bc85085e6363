package audio

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	r := rand.New(rand.NewSource(int64(n)))
	b := make([]byte, n)
	_, err := r.Read(b)
	require.NoError(t, err)
	return b
}

func TestChunkBufferKeepsEmissionOrder(t *testing.T) {
	buf := NewChunkBuffer(0, 0)
	require.NoError(t, buf.Append([]byte("one-")))
	require.NoError(t, buf.Append(nil))
	require.NoError(t, buf.Append([]byte("two-")))
	require.NoError(t, buf.Append([]byte{}))
	require.NoError(t, buf.Append([]byte("three")))

	assert.Equal(t, 3, buf.Len())
	assert.Equal(t, 13, buf.Size())

	payload := buf.Seal("")
	assert.Equal(t, []byte("one-two-three"), payload.Bytes())
	assert.Equal(t, MimeTypeWebM, payload.MimeType())
}

func TestChunkBufferCopiesInput(t *testing.T) {
	buf := NewChunkBuffer(0, 0)
	chunk := []byte("abc")
	require.NoError(t, buf.Append(chunk))
	chunk[0] = 'x'
	assert.Equal(t, []byte("abc"), buf.Bytes())
}

func TestChunkBufferRejectsWritesAfterSeal(t *testing.T) {
	buf := NewChunkBuffer(0, 0)
	require.NoError(t, buf.Append([]byte("a")))
	first := buf.Seal(MimeTypeWebM)

	err := buf.Append([]byte("late"))
	assert.ErrorIs(t, err, ErrBufferSealed)

	second := buf.Seal(MimeTypeWebM)
	assert.Equal(t, first.Bytes(), second.Bytes())
}

func TestChunkBufferBounds(t *testing.T) {
	byCount := NewChunkBuffer(2, 0)
	require.NoError(t, byCount.Append([]byte("a")))
	require.NoError(t, byCount.Append([]byte("b")))
	assert.ErrorIs(t, byCount.Append([]byte("c")), ErrBufferFull)

	bySize := NewChunkBuffer(0, 4)
	require.NoError(t, bySize.Append([]byte("abc")))
	assert.ErrorIs(t, bySize.Append([]byte("de")), ErrBufferFull)
	assert.Equal(t, 3, bySize.Size())
}

func TestPayloadIsImmutable(t *testing.T) {
	src := []byte("webm")
	p := NewPayload(src, "")
	src[0] = 'X'

	out := p.Bytes()
	out[1] = 'X'

	assert.Equal(t, []byte("webm"), p.Bytes())
	assert.Equal(t, 4, p.Size())
}

func TestEncodeBase64MatchesStdlib(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, encodeBlockSize - 1, encodeBlockSize, encodeBlockSize + 1, 3*encodeBlockSize + 7} {
		data := randomBytes(t, n)
		got, err := EncodeBase64(context.Background(), NewPayload(data, MimeTypeWebM))
		require.NoError(t, err)
		assert.Equal(t, base64.StdEncoding.EncodeToString(data), got, "size %d", n)
	}
}

func TestEncodeBase64EmptyPayload(t *testing.T) {
	_, err := EncodeBase64(context.Background(), NewPayload(nil, MimeTypeWebM))
	assert.ErrorIs(t, err, ErrEmptyPayload)

	_, err = EncodeBase64(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyPayload)
}

func TestEncodeBase64Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := EncodeBase64(ctx, NewPayload([]byte("data"), MimeTypeWebM))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDecodeBase64ChunksRoundTrip(t *testing.T) {
	chunkSizes := []int{4, 5, 1024, DefaultDecodeChunkSize, 0}
	for _, n := range []int{1, 2, 3, 100, 32768, 100_001} {
		data := randomBytes(t, n)
		encoded := base64.StdEncoding.EncodeToString(data)
		for _, cs := range chunkSizes {
			decoded, err := DecodeBase64Chunks(encoded, cs)
			require.NoError(t, err, "size %d chunk %d", n, cs)
			require.True(t, bytes.Equal(data, decoded), "size %d chunk %d", n, cs)
			assert.Equal(t, encoded, base64.StdEncoding.EncodeToString(decoded))
		}
	}
}

func TestDecodeBase64ChunksAcceptsDataURLAndLineBreaks(t *testing.T) {
	data := []byte("merhaba dünya")
	encoded := base64.StdEncoding.EncodeToString(data)

	decoded, err := DecodeBase64Chunks("data:audio/webm;codecs=opus;base64,"+encoded, 8)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)

	wrapped := encoded[:8] + "\r\n" + encoded[8:]
	decoded, err = DecodeBase64Chunks(wrapped, 8)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestDecodeBase64ChunksRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"empty data url", "data:audio/webm;base64,"},
		{"illegal characters", "QUJD$$$$"},
		{"padding in the middle", "QQ==QUJD"},
		{"truncated quantum", "QUJDRA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBase64Chunks(tt.input, 4)
			assert.Error(t, err)
		})
	}

	_, err := DecodeBase64Chunks("", 4)
	assert.ErrorIs(t, err, ErrEmptyPayload)
	_, err = DecodeBase64Chunks(strings.Repeat("A", 3), 4)
	assert.Error(t, err)
}
