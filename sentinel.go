package msgstream

import "math"

// ControlTypeID is the type id reported by sentinels. Sentinels never reach
// the wire, so no codec may claim it.
const ControlTypeID int32 = math.MinInt32

// Sentinel is a synthetic lifecycle event injected directly into a receive
// queue. Two sentinels are equal exactly when they are the same kind.
type Sentinel uint8

const (
	// ServerConnectionLost is delivered to a client when its connection ends.
	ServerConnectionLost Sentinel = iota + 1
	// ClientConnectionLost is delivered by a server when one of its connections ends.
	ClientConnectionLost
	// ClientConnectionAdded is delivered by a server when a connection is registered.
	ClientConnectionAdded
	// ShutdownRequested is delivered by a server when it is closed.
	ShutdownRequested
)

// TypeID implements Message.
func (s Sentinel) TypeID() int32 {
	return ControlTypeID
}

// Hash returns a non-zero hash specific to the sentinel kind.
func (s Sentinel) Hash() uint64 {
	// golden-ratio multiplier spreads the small kind values
	return (uint64(s) + 1) * 0x9E3779B97F4A7C15
}

func (s Sentinel) String() string {
	switch s {
	case ServerConnectionLost, ClientConnectionLost:
		return "<DISCONNECTED>"
	case ClientConnectionAdded:
		return "<JOINED>"
	case ShutdownRequested:
		return "<SHUTDOWN>"
	default:
		return "<UNKNOWN>"
	}
}

// IsSentinel reports whether message is a lifecycle sentinel.
func IsSentinel(message Message) bool {
	_, ok := message.(Sentinel)
	return ok
}
