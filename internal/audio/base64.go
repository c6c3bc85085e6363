package audio

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DefaultDecodeChunkSize is the number of base64 characters decoded per step
const DefaultDecodeChunkSize = 32768

// encodeBlockSize is a multiple of 3 so every block encodes without padding
const encodeBlockSize = 3 * 16 * 1024

// ErrEmptyPayload is returned when there is no audio to encode or decode
var ErrEmptyPayload = errors.New("audio payload is empty")

var lineBreaks = strings.NewReplacer("\r", "", "\n", "")

// DecodeBase64Chunks decodes standard base64 text in bounded steps of
// chunkSize characters and reassembles the result into one buffer.
// A leading data URL header ("data:audio/webm;base64,") is ignored.
func DecodeBase64Chunks(encoded string, chunkSize int) ([]byte, error) {
	if i := strings.IndexByte(encoded, ','); strings.HasPrefix(encoded, "data:") && i >= 0 {
		encoded = encoded[i+1:]
	}
	if strings.ContainsAny(encoded, "\r\n") {
		encoded = lineBreaks.Replace(encoded)
	}
	if encoded == "" {
		return nil, ErrEmptyPayload
	}

	// Each step must cover whole 4-character quanta
	if chunkSize <= 0 {
		chunkSize = DefaultDecodeChunkSize
	}
	chunkSize -= chunkSize % 4
	if chunkSize == 0 {
		chunkSize = 4
	}

	out := make([]byte, base64.StdEncoding.DecodedLen(len(encoded)))
	written := 0
	for pos := 0; pos < len(encoded); pos += chunkSize {
		end := pos + chunkSize
		last := end >= len(encoded)
		if last {
			end = len(encoded)
		}
		chunk := encoded[pos:end]

		if !last && strings.IndexByte(chunk, '=') >= 0 {
			return nil, fmt.Errorf("illegal padding in base64 data before offset %d", end)
		}

		n, err := base64.StdEncoding.Decode(out[written:], []byte(chunk))
		if err != nil {
			var corrupt base64.CorruptInputError
			if errors.As(err, &corrupt) {
				return nil, fmt.Errorf("illegal base64 data at offset %d", pos+int(corrupt))
			}
			return nil, fmt.Errorf("failed to decode base64 chunk at offset %d: %w", pos, err)
		}
		written += n
	}

	return out[:written], nil
}

// EncodeBase64 converts the payload to standard base64 text. The read is
// done in blocks and stops early when ctx is cancelled.
func EncodeBase64(ctx context.Context, payload *Payload) (string, error) {
	if payload == nil || payload.Size() == 0 {
		return "", ErrEmptyPayload
	}

	var out strings.Builder
	out.Grow(base64.StdEncoding.EncodedLen(payload.Size()))

	src := payload.Reader()
	block := make([]byte, encodeBlockSize)
	dst := make([]byte, base64.StdEncoding.EncodedLen(encodeBlockSize))
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := io.ReadFull(src, block)
		if n > 0 {
			base64.StdEncoding.Encode(dst, block[:n])
			out.Write(dst[:base64.StdEncoding.EncodedLen(n)])
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read payload: %w", err)
		}
	}

	if out.Len() == 0 {
		return "", ErrEmptyPayload
	}
	return out.String(), nil
}
