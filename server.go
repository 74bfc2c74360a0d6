package msgstream

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"

	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
	"go.uber.org/multierr"
)

// Errors returned by server endpoint operations.
var (
	// ErrServerClosed is returned by AddConnection after Close.
	ErrServerClosed = errors.New("server closed")
	// ErrUnknownConnection is returned for an id that is not registered.
	ErrUnknownConnection = errors.New("unknown connection")
	// ErrDuplicateConnection is returned when an id is already registered.
	ErrDuplicateConnection = errors.New("duplicate connection")
	// ErrInvalidConnectionID is returned for the reserved null id.
	ErrInvalidConnectionID = errors.New("invalid connection id")
)

// Envelope is one item received by a Server: a message or sentinel,
// tagged with the connection it concerns. ShutdownRequested carries uuid.Nil.
type Envelope struct {
	ID      uuid.UUID
	Message Message
}

// Server multiplexes many connections, each identified by a caller-chosen
// id, onto one shared receive queue.
//
// mu guards the connection table and the closed flag. It is never held
// while a channel closes or while blocking on a queue.
type Server struct {
	registry *Registry
	logger   Logger
	opts     options
	notify   func()

	inbox *queue[Envelope]

	mu     sync.Mutex
	conns  map[uuid.UUID]*Channel
	closed bool
}

// NewServer creates a server endpoint with no connections.
func NewServer(registry *Registry, opt ...Option) (*Server, error) {
	if registry == nil {
		return nil, ErrInvalidRegistry
	}

	opts := buildOptions(opt)
	return &Server{
		registry: registry,
		logger:   opts.logger,
		opts:     opts,
		notify:   opts.notify,
		inbox:    newQueue[Envelope](),
		conns:    make(map[uuid.UUID]*Channel),
	}, nil
}

// AddConnection registers an already connected stream under id and queues
// ClientConnectionAdded for it ahead of any message it sends. After Close
// the stream is closed instead and ErrServerClosed is returned.
func (s *Server) AddConnection(id uuid.UUID, stream io.ReadWriteCloser) error {
	if stream == nil {
		return ErrInvalidStream
	}
	if uuid.Equal(id, uuid.Nil) {
		return ErrInvalidConnectionID
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = stream.Close()
		s.logger.Debug("connection rejected, server closed", "conn_id", id)
		return ErrServerClosed
	}
	if _, ok := s.conns[id]; ok {
		s.mu.Unlock()
		return errors.Wrapf(ErrDuplicateConnection, "%s", id)
	}

	var channel *Channel
	policy := Policy{
		Deliver: func(message Message) {
			if message == ClientConnectionLost {
				s.forget(id, channel)
			}
			s.enqueue(Envelope{ID: id, Message: message})
		},
		LostSentinel: func() Message { return ClientConnectionLost },
	}

	opts := s.opts
	opts.logArgs = []any{"conn_id", id.String()}
	channel, err := newChannel(stream, s.registry, policy, opts)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	s.conns[id] = channel
	_ = s.inbox.push(Envelope{ID: id, Message: ClientConnectionAdded})
	channel.start()
	s.mu.Unlock()

	s.logger.Info("connection added", "conn_id", id)
	s.notify()
	return nil
}

// Send queues message for every connection in ids. All ids are checked
// before anything is queued; an unknown id fails the whole call.
func (s *Server) Send(message Message, ids ...uuid.UUID) error {
	frame, err := encodeMessage(s.registry, message)
	if err != nil {
		return err
	}

	s.mu.Lock()
	targets := make([]*Channel, 0, len(ids))
	for _, id := range ids {
		channel, ok := s.conns[id]
		if !ok {
			s.mu.Unlock()
			return errors.Wrapf(ErrUnknownConnection, "%s", id)
		}
		targets = append(targets, channel)
	}
	s.mu.Unlock()

	var errs error
	for i, channel := range targets {
		if err := channel.sendFrame(frame); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "%s", ids[i]))
		}
	}
	return errs
}

// Receive blocks until an envelope is available.
// It fails with ErrEndpointDisposed once Dispose has been called.
func (s *Server) Receive() (Envelope, error) {
	return s.ReceiveContext(context.Background())
}

// ReceiveContext is Receive bounded by ctx.
func (s *Server) ReceiveContext(ctx context.Context) (Envelope, error) {
	envelope, err := s.inbox.pop(ctx)
	if errors.Is(err, errQueueClosed) {
		return Envelope{}, ErrEndpointDisposed
	}
	return envelope, err
}

// HasData reports whether Receive would return without blocking.
func (s *Server) HasData() bool {
	return s.inbox.len() > 0
}

// Connections returns the registered connection ids in ascending order.
func (s *Server) Connections() []uuid.UUID {
	s.mu.Lock()
	ids := make([]uuid.UUID, 0, len(s.conns))
	for id := range s.conns {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i].Bytes(), ids[j].Bytes()) < 0
	})
	return ids
}

// Disconnect closes the connection registered under id.
func (s *Server) Disconnect(id uuid.UUID) error {
	s.mu.Lock()
	channel, ok := s.conns[id]
	s.mu.Unlock()

	if !ok {
		return errors.Wrapf(ErrUnknownConnection, "%s", id)
	}
	return channel.Close()
}

// DisconnectAll closes every registered connection.
func (s *Server) DisconnectAll() error {
	return closeAll(s.snapshot())
}

// Close stops accepting connections, queues ShutdownRequested and closes
// every connection. Safe to call multiple times.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	_ = s.inbox.push(Envelope{ID: uuid.Nil, Message: ShutdownRequested})
	channels := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info("server closing", "connections", len(channels))
	s.notify()
	return closeAll(channels)
}

// Dispose closes the server and its receive queue, failing any blocked
// Receive.
func (s *Server) Dispose() error {
	err := s.Close()
	s.inbox.close()
	return err
}

// forget removes id from the table if it still maps to channel.
func (s *Server) forget(id uuid.UUID, channel *Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conns[id] == channel {
		delete(s.conns, id)
	}
}

func (s *Server) enqueue(envelope Envelope) {
	if err := s.inbox.push(envelope); err != nil {
		return // disposed
	}
	s.notify()
}

func (s *Server) snapshot() []*Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Server) snapshotLocked() []*Channel {
	channels := make([]*Channel, 0, len(s.conns))
	for _, channel := range s.conns {
		channels = append(channels, channel)
	}
	return channels
}

func closeAll(channels []*Channel) error {
	var errs error
	for _, channel := range channels {
		errs = multierr.Append(errs, channel.Close())
	}
	return errs
}
