package msgstream

import (
	"encoding/binary"
	"sort"

	"github.com/pkg/errors"
)

// NullTypeID is reserved by codecs for an absent nullable value.
// It never appears as the type id of a top-level frame.
const NullTypeID int32 = -1

// typeIDSize is the size of the little-endian type id leading every payload.
const typeIDSize = 4

// Errors returned by the registry.
var (
	// ErrUnknownType is returned when no codec is registered for a type id.
	ErrUnknownType = errors.New("unknown message type")
	// ErrDuplicateType is returned when two codecs claim the same type id.
	ErrDuplicateType = errors.New("duplicate message type")
	// ErrReservedType is returned when a codec claims a reserved type id.
	ErrReservedType = errors.New("reserved message type")
	// ErrTruncatedPayload is returned when a payload is too short to hold a type id.
	ErrTruncatedPayload = errors.New("truncated payload")
	// ErrNullMessage is returned for a top-level payload carrying NullTypeID.
	ErrNullMessage = errors.New("null message at top level")
	// ErrSentinelNotSendable is returned when a sentinel is passed to Send.
	ErrSentinelNotSendable = errors.New("sentinel messages cannot be sent")
	// ErrNilMessage is returned when a nil message is passed to Send.
	ErrNilMessage = errors.New("nil message")
)

// Message is any value with a stable numeric type identifier.
type Message interface {
	// TypeID returns the identifier written ahead of the message body.
	TypeID() int32
}

// Codec converts one message type to and from its body bytes.
// Implementations are usually generated from a schema.
type Codec interface {
	// TypeID returns the identifier of the message type handled by this codec.
	TypeID() int32
	// Encode returns the body of message, without the type id.
	Encode(message Message) ([]byte, error)
	// Decode builds a message from its body. The body aliases the
	// connection's read buffer and must not be retained.
	Decode(body []byte) (Message, error)
	// Equal reports whether a and b hold the same value.
	Equal(a, b Message) bool
	// Hash returns a hash consistent with Equal.
	Hash(message Message) uint64
}

// Registry maps type ids to codecs. It is built once and shared read-only
// by every endpoint using it.
type Registry struct {
	codecs map[int32]Codec
}

// NewRegistry builds a registry from codecs.
// It fails if two codecs share an id or a codec claims a reserved id.
func NewRegistry(codecs ...Codec) (*Registry, error) {
	r := &Registry{codecs: make(map[int32]Codec, len(codecs))}
	for _, codec := range codecs {
		id := codec.TypeID()
		if id == NullTypeID || id == ControlTypeID {
			return nil, errors.Wrapf(ErrReservedType, "type id %d", id)
		}
		if _, ok := r.codecs[id]; ok {
			return nil, errors.Wrapf(ErrDuplicateType, "type id %d", id)
		}
		r.codecs[id] = codec
	}
	return r, nil
}

// Lookup returns the codec registered for id.
func (r *Registry) Lookup(id int32) (Codec, bool) {
	codec, ok := r.codecs[id]
	return codec, ok
}

// IDs returns the registered type ids in ascending order.
func (r *Registry) IDs() []int32 {
	ids := make([]int32, 0, len(r.codecs))
	for id := range r.codecs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Marshal returns the payload for message: its type id followed by its body.
func (r *Registry) Marshal(message Message) ([]byte, error) {
	if message == nil {
		return nil, ErrNilMessage
	}
	if IsSentinel(message) {
		return nil, errors.Wrapf(ErrSentinelNotSendable, "%v", message)
	}

	id := message.TypeID()
	codec, ok := r.codecs[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownType, "type id %d", id)
	}

	body, err := codec.Encode(message)
	if err != nil {
		return nil, errors.Wrapf(err, "encode type id %d", id)
	}

	payload := make([]byte, typeIDSize, typeIDSize+len(body))
	binary.LittleEndian.PutUint32(payload, uint32(id))
	return append(payload, body...), nil
}

// Unmarshal decodes a payload produced by Marshal.
func (r *Registry) Unmarshal(payload []byte) (Message, error) {
	if len(payload) < typeIDSize {
		return nil, errors.Wrapf(ErrTruncatedPayload, "%d bytes", len(payload))
	}

	id := int32(binary.LittleEndian.Uint32(payload))
	if id == NullTypeID {
		return nil, ErrNullMessage
	}

	codec, ok := r.codecs[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownType, "type id %d", id)
	}

	message, err := codec.Decode(payload[typeIDSize:])
	if err != nil {
		return nil, errors.Wrapf(err, "decode type id %d", id)
	}
	return message, nil
}

// Equal reports whether a and b are the same type and hold the same value.
func (r *Registry) Equal(a, b Message) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if IsSentinel(a) || IsSentinel(b) {
		return a == b
	}
	if a.TypeID() != b.TypeID() {
		return false
	}
	codec, ok := r.codecs[a.TypeID()]
	if !ok {
		return false
	}
	return codec.Equal(a, b)
}

// Hash returns the hash of message as computed by its codec.
// Unregistered types hash to zero.
func (r *Registry) Hash(message Message) uint64 {
	if s, ok := message.(Sentinel); ok {
		return s.Hash()
	}
	if message == nil {
		return 0
	}
	codec, ok := r.codecs[message.TypeID()]
	if !ok {
		return 0
	}
	return codec.Hash(message)
}
