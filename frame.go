package msgstream

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Frame layout constants.
const (
	// FrameHeaderSize is the size of the little-endian length prefix.
	FrameHeaderSize = 2
	// MaxPayloadSize is the largest payload a single frame can carry.
	MaxPayloadSize = 0xFFFF
	// FrameBufferSize is the size of a buffer that can always hold one complete frame.
	FrameBufferSize = FrameHeaderSize + MaxPayloadSize
)

// ErrPayloadTooLarge is returned when a payload does not fit in one frame.
var ErrPayloadTooLarge = errors.New("payload too large")

// EncodeFrame returns payload prefixed with its 2-byte little-endian length.
// Payloads longer than MaxPayloadSize are rejected, never truncated.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, errors.Wrapf(ErrPayloadTooLarge, "%d bytes exceeds %d", len(payload), MaxPayloadSize)
	}
	return AppendFrame(make([]byte, 0, FrameHeaderSize+len(payload)), payload)
}

// AppendFrame appends the frame for payload to dst and returns the extended slice.
func AppendFrame(dst, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return dst, errors.Wrapf(ErrPayloadTooLarge, "%d bytes exceeds %d", len(payload), MaxPayloadSize)
	}
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(payload)))
	return append(dst, payload...), nil
}

// DecodeFrame extracts the first complete frame from buf.
// It returns ok == false, consuming nothing, while buf holds fewer bytes than
// the frame declares. Otherwise payload aliases buf and n is the number of
// bytes the frame occupies.
func DecodeFrame(buf []byte) (payload []byte, n int, ok bool) {
	if len(buf) < FrameHeaderSize {
		return nil, 0, false
	}
	size := int(binary.LittleEndian.Uint16(buf))
	n = FrameHeaderSize + size
	if len(buf) < n {
		return nil, 0, false
	}
	return buf[FrameHeaderSize:n:n], n, true
}
