// Package framing implements the balise wire format: a 4-byte big-endian
// payload length followed by the payload itself.
package framing

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// DefaultMaxFrameBytes matches the device firmware limit of 128 KiB.
const DefaultMaxFrameBytes = 131072

const headerLen = 4

// ErrFrameTooLarge means a header declared a payload beyond the configured
// maximum. The stream is desynchronized at that point: the caller must close
// the connection rather than skip the frame.
var ErrFrameTooLarge = errors.New("framing: declared frame length exceeds maximum")

// Decoder reassembles complete frames from an arbitrarily chunked byte
// stream. It is restartable per connection and not safe for concurrent use;
// each connection owns its own Decoder.
type Decoder struct {
	maxFrameBytes int
	buf           []byte
	poisoned      bool
}

// NewDecoder returns a Decoder enforcing the given payload ceiling.
// A non-positive limit falls back to DefaultMaxFrameBytes.
func NewDecoder(maxFrameBytes int) *Decoder {
	if maxFrameBytes <= 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}
	return &Decoder{maxFrameBytes: maxFrameBytes}
}

// Feed appends a chunk and returns every frame completed by it, headers
// stripped, in arrival order. Zero-length chunks are ignored. Zero-length
// payloads produce empty (non-nil) frames. After ErrFrameTooLarge the decoder
// refuses further input.
func (d *Decoder) Feed(chunk []byte) ([][]byte, error) {
	if d.poisoned {
		return nil, ErrFrameTooLarge
	}
	if len(chunk) > 0 {
		d.buf = append(d.buf, chunk...)
	}

	var frames [][]byte
	for len(d.buf) >= headerLen {
		declared := binary.BigEndian.Uint32(d.buf[:headerLen])
		if declared > uint32(d.maxFrameBytes) {
			d.poisoned = true
			return frames, fmt.Errorf("%w: declared %d, max %d", ErrFrameTooLarge, declared, d.maxFrameBytes)
		}
		total := headerLen + int(declared)
		if len(d.buf) < total {
			break
		}
		frame := make([]byte, declared)
		copy(frame, d.buf[headerLen:total])
		frames = append(frames, frame)
		d.buf = d.buf[total:]
	}

	// Drop the consumed prefix for long-lived connections.
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return frames, nil
}

// Buffered reports how many bytes are waiting for frame completion.
func (d *Decoder) Buffered() int { return len(d.buf) }

// EncodeFrame prepends the 4-byte big-endian length header. Used on the
// outbound command path.
func EncodeFrame(payload []byte) []byte {
	out := make([]byte, headerLen+len(payload))
	binary.BigEndian.PutUint32(out[:headerLen], uint32(len(payload)))
	copy(out[headerLen:], payload)
	return out
}
