// Package text provides a codec for messages made of a single string body.
// The body is encoded as a little-endian int32 byte length followed by the
// UTF-8 bytes, which is how schema-generated codecs write string fields.
package text

import (
	"encoding/binary"
	"hash/fnv"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/Zereker/msgstream"
)

// Errors returned when decoding a body.
var (
	ErrShortBody      = errors.New("text: short body")
	ErrNegativeLength = errors.New("text: negative string length")
	ErrTrailingBytes  = errors.New("text: trailing bytes after string")
	ErrInvalidUTF8    = errors.New("text: invalid utf-8")
)

// Message is a string tagged with the type id it travels under.
type Message struct {
	ID   int32
	Body string
}

// TypeID implements msgstream.Message.
func (m Message) TypeID() int32 {
	return m.ID
}

func (m Message) String() string {
	return m.Body
}

// Codec handles Message values carrying one type id.
type Codec int32

var _ msgstream.Codec = Codec(0)

// New returns the codec for text messages with the given type id.
func New(id int32) Codec {
	return Codec(id)
}

// TypeID implements msgstream.Codec.
func (c Codec) TypeID() int32 {
	return int32(c)
}

// Encode implements msgstream.Codec.
func (c Codec) Encode(message msgstream.Message) ([]byte, error) {
	m, err := c.cast(message)
	if err != nil {
		return nil, err
	}

	body := make([]byte, 4, 4+len(m.Body))
	binary.LittleEndian.PutUint32(body, uint32(len(m.Body)))
	return append(body, m.Body...), nil
}

// Decode implements msgstream.Codec. The string is copied out of body.
func (c Codec) Decode(body []byte) (msgstream.Message, error) {
	if len(body) < 4 {
		return nil, ErrShortBody
	}

	size := int32(binary.LittleEndian.Uint32(body))
	if size < 0 {
		return nil, errors.Wrapf(ErrNegativeLength, "%d", size)
	}

	rest := body[4:]
	switch {
	case int(size) > len(rest):
		return nil, errors.Wrapf(ErrShortBody, "want %d bytes, have %d", size, len(rest))
	case int(size) < len(rest):
		return nil, errors.Wrapf(ErrTrailingBytes, "%d bytes", len(rest)-int(size))
	}
	if !utf8.Valid(rest) {
		return nil, ErrInvalidUTF8
	}

	return Message{ID: int32(c), Body: string(rest)}, nil
}

// Equal implements msgstream.Codec.
func (c Codec) Equal(a, b msgstream.Message) bool {
	ma, okA := a.(Message)
	mb, okB := b.(Message)
	return okA && okB && ma == mb
}

// Hash implements msgstream.Codec.
func (c Codec) Hash(message msgstream.Message) uint64 {
	m, ok := message.(Message)
	if !ok {
		return 0
	}

	h := fnv.New64a()
	var id [4]byte
	binary.LittleEndian.PutUint32(id[:], uint32(m.ID))
	_, _ = h.Write(id[:])
	_, _ = h.Write([]byte(m.Body))
	return h.Sum64()
}

func (c Codec) cast(message msgstream.Message) (Message, error) {
	m, ok := message.(Message)
	if !ok {
		return Message{}, errors.Errorf("text: codec %d cannot encode %T", int32(c), message)
	}
	if m.ID != int32(c) {
		return Message{}, errors.Errorf("text: codec %d cannot encode type id %d", int32(c), m.ID)
	}
	return m, nil
}
