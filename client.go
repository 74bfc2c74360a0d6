package msgstream

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// ErrEndpointDisposed is returned by Receive once the endpoint is disposed.
var ErrEndpointDisposed = errors.New("endpoint disposed")

// Client is the endpoint of a single outbound connection. Decoded messages
// are queued until Receive takes them; when the connection ends the queue
// gets one ServerConnectionLost after every message received before it.
type Client struct {
	channel *Channel
	inbox   *queue[Message]
	notify  func()
}

// NewClient wraps an already connected stream.
func NewClient(stream io.ReadWriteCloser, registry *Registry, opt ...Option) (*Client, error) {
	opts := buildOptions(opt)

	c := &Client{
		inbox:  newQueue[Message](),
		notify: opts.notify,
	}

	channel, err := newChannel(stream, registry, Policy{
		Deliver:      c.deliver,
		LostSentinel: func() Message { return ServerConnectionLost },
	}, opts)
	if err != nil {
		return nil, err
	}

	c.channel = channel
	channel.start()
	return c, nil
}

func (c *Client) deliver(message Message) {
	if err := c.inbox.push(message); err != nil {
		return // disposed
	}
	c.notify()
}

// Send queues message for the server. It never blocks.
func (c *Client) Send(message Message) error {
	return c.channel.Send(message)
}

// Receive blocks until a message is available.
// It fails with ErrEndpointDisposed once Dispose has been called.
func (c *Client) Receive() (Message, error) {
	return c.ReceiveContext(context.Background())
}

// ReceiveContext is Receive bounded by ctx.
func (c *Client) ReceiveContext(ctx context.Context) (Message, error) {
	message, err := c.inbox.pop(ctx)
	if errors.Is(err, errQueueClosed) {
		return nil, ErrEndpointDisposed
	}
	return message, err
}

// HasData reports whether Receive would return without blocking.
// The answer is only a hint when other goroutines also receive.
func (c *Client) HasData() bool {
	return c.inbox.len() > 0
}

// Close closes the connection. Messages already queued, followed by
// ServerConnectionLost, can still be received.
func (c *Client) Close() error {
	return c.channel.Close()
}

// Dispose closes the connection and the receive queue, failing any
// blocked Receive.
func (c *Client) Dispose() error {
	err := c.channel.Close()
	c.inbox.close()
	return err
}

// Done returns a channel that is closed once the connection has stopped.
func (c *Client) Done() <-chan struct{} {
	return c.channel.Done()
}
