// Package msgstream exchanges typed messages over byte streams.
// Every message travels in a length-prefixed frame whose payload starts with
// the message's type id; per-type codecs registered in a Registry turn
// messages into bodies and back. A Channel runs the read and write pumps of
// one stream, and the Client and Server endpoints expose a blocking
// send/receive surface on top of one or many channels.
package msgstream

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Errors returned by channel and endpoint construction and operations.
var (
	// ErrInvalidRegistry is returned when no registry is provided.
	ErrInvalidRegistry = errors.New("invalid codec registry")
	// ErrInvalidStream is returned when no stream is provided.
	ErrInvalidStream = errors.New("invalid stream")
	// ErrInvalidPolicy is returned when a policy hook is missing.
	ErrInvalidPolicy = errors.New("invalid channel policy")
)

// ErrConnectionClosed is returned when operating on a closed connection.
var ErrConnectionClosed = errors.New("connection closed")

// Policy customizes what a Channel does with inbound messages.
type Policy struct {
	// Deliver receives every decoded message, then exactly one lost
	// sentinel. Calls are serialized.
	Deliver func(Message)
	// LostSentinel builds the message delivered when the connection ends.
	LostSentinel func() Message
}

// deadlineWriter is implemented by streams supporting write deadlines.
type deadlineWriter interface {
	SetWriteDeadline(t time.Time) error
}

// Channel owns one connected stream. A writer goroutine drains an unbounded
// queue of frames in submission order, and a reader goroutine reassembles
// inbound frames and hands decoded messages to the policy.
//
// A channel closes on the first of Close, a read or decode error, a clean
// EOF from the peer, or a write error. Whoever wins that transition discards
// queued frames, closes the stream and delivers the lost sentinel.
type Channel struct {
	stream   io.ReadWriteCloser
	registry *Registry
	policy   Policy
	logger   Logger
	opts     options

	outbound *queue[[]byte]

	// read state, owned by the reader goroutine
	readBuf [FrameBufferSize]byte
	valid   int

	// closeMu guards closed and cause.
	closeMu sync.Mutex
	closed  bool
	cause   error

	// deliverMu serializes policy deliveries so that nothing follows the
	// lost sentinel.
	deliverMu sync.Mutex

	done chan struct{}
}

// NewChannel wraps an already connected stream and starts its pumps.
func NewChannel(stream io.ReadWriteCloser, registry *Registry, policy Policy, opt ...Option) (*Channel, error) {
	c, err := newChannel(stream, registry, policy, buildOptions(opt))
	if err != nil {
		return nil, err
	}
	c.start()
	return c, nil
}

// newChannel validates its arguments and builds a channel without starting it.
func newChannel(stream io.ReadWriteCloser, registry *Registry, policy Policy, opts options) (*Channel, error) {
	if stream == nil {
		return nil, ErrInvalidStream
	}
	if registry == nil {
		return nil, ErrInvalidRegistry
	}
	if policy.Deliver == nil || policy.LostSentinel == nil {
		return nil, ErrInvalidPolicy
	}

	return &Channel{
		stream:   stream,
		registry: registry,
		policy:   policy,
		logger:   withArgs(opts.logger, opts.logArgs...),
		opts:     opts,
		outbound: newQueue[[]byte](),
		done:     make(chan struct{}),
	}, nil
}

// start launches the reader and writer goroutines.
func (c *Channel) start() {
	c.logger.Debug("connection established", "write_timeout", c.opts.writeTimeout)

	var group errgroup.Group
	group.Go(c.readLoop)
	group.Go(c.writeLoop)

	go func() {
		err := group.Wait()
		if err != nil {
			c.logger.Info("connection closed with error", "error", err)
		} else {
			c.logger.Info("connection closed")
		}
		close(c.done)
	}()
}

// Send encodes message and queues its frame for writing. It never blocks.
// Encoding errors, such as an unregistered type or a payload larger than
// MaxPayloadSize, are returned to the caller and nothing is queued.
func (c *Channel) Send(message Message) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}

	frame, err := encodeMessage(c.registry, message)
	if err != nil {
		return err
	}

	return c.sendFrame(frame)
}

// sendFrame queues an already encoded frame.
func (c *Channel) sendFrame(frame []byte) error {
	if err := c.outbound.push(frame); err != nil {
		return ErrConnectionClosed
	}
	return nil
}

// Close closes the connection. Queued frames are discarded.
// Safe to call multiple times and from multiple goroutines.
func (c *Channel) Close() error {
	_, err := c.shutdown(nil)
	return err
}

// IsClosed returns true if the connection has been closed.
func (c *Channel) IsClosed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closed
}

// Err returns the error that closed the connection. It is nil while the
// connection is open and after Close or a clean EOF from the peer.
func (c *Channel) Err() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.cause
}

// Done returns a channel that is closed once both pumps have stopped.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// shutdown performs the Open to Closed transition. Only the first caller
// gets won == true; it closes the stream and delivers the lost sentinel.
func (c *Channel) shutdown(cause error) (won bool, err error) {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return false, nil
	}
	c.closed = true
	c.cause = cause
	c.closeMu.Unlock()

	c.outbound.close()
	err = c.stream.Close()

	c.deliverMu.Lock()
	c.policy.Deliver(c.policy.LostSentinel())
	c.deliverMu.Unlock()

	return true, err
}

// deliver hands message to the policy unless the channel is closed.
func (c *Channel) deliver(message Message) bool {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	if c.IsClosed() {
		return false
	}
	c.policy.Deliver(message)
	return true
}

// readLoop keeps exactly one read outstanding into the unused tail of the
// read buffer and unframes whatever has arrived.
func (c *Channel) readLoop() error {
	for {
		n, err := c.stream.Read(c.readBuf[c.valid:])
		if n > 0 {
			c.valid += n
			if derr := c.unframe(); derr != nil {
				c.logger.Debug("decode error", "error", derr)
				return c.fail(derr)
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				c.logger.Debug("peer closed connection")
				return c.fail(nil)
			}
			c.logger.Debug("read error", "error", err)
			return c.fail(err)
		}

		if c.IsClosed() {
			return nil
		}
	}
}

// unframe delivers every complete frame in the buffer, then moves the
// partial remainder to the start of the buffer.
func (c *Channel) unframe() error {
	offset := 0
	for {
		payload, n, ok := DecodeFrame(c.readBuf[offset:c.valid])
		if !ok {
			break
		}

		message, err := c.registry.Unmarshal(payload)
		if err != nil {
			return err
		}
		offset += n

		if !c.deliver(message) {
			return nil
		}
	}

	c.valid = copy(c.readBuf[:], c.readBuf[offset:c.valid])
	return nil
}

// writeLoop writes queued frames one at a time until the queue is closed
// or a write fails.
func (c *Channel) writeLoop() error {
	for {
		frame, err := c.outbound.pop(context.Background())
		if err != nil {
			return nil
		}

		if err := c.write(frame); err != nil {
			c.logger.Debug("write error", "error", err)
			return c.fail(err)
		}
	}
}

// write sends one whole frame, under a deadline when one is configured.
func (c *Channel) write(frame []byte) error {
	if c.opts.writeTimeout > 0 {
		if dw, ok := c.stream.(deadlineWriter); ok {
			_ = dw.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout))
		}
	}

	_, err := c.stream.Write(frame)
	return err
}

// fail closes the channel because of err. It returns err when this call
// closed the channel, and nil when the channel was already closed, in which
// case err is only a consequence of that earlier close.
func (c *Channel) fail(err error) error {
	won, _ := c.shutdown(err)
	if !won {
		return nil
	}
	return err
}

// encodeMessage turns message into a complete frame.
func encodeMessage(registry *Registry, message Message) ([]byte, error) {
	payload, err := registry.Marshal(message)
	if err != nil {
		return nil, err
	}
	return EncodeFrame(payload)
}
