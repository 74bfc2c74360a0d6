package main

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/Zereker/msgstream"
)

// Handler takes ownership of each accepted connection.
type Handler interface {
	Handle(conn *net.TCPConn)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(conn *net.TCPConn)

// Handle calls f(conn).
func (f HandlerFunc) Handle(conn *net.TCPConn) {
	f(conn)
}

// listener accepts TCP connections until its context is canceled.
// Once canceled it keeps accepting for shutdownTimeout so in-flight
// clients can finish, unless Close cuts the wait short.
type listener struct {
	ln              *net.TCPListener
	logger          msgstream.Logger
	shutdownTimeout time.Duration

	mu          sync.Mutex
	shutdown    bool
	shutdownNow chan struct{}
}

func newListener(addr *net.TCPAddr, logger msgstream.Logger, shutdownTimeout time.Duration) (*listener, error) {
	ln, err := net.ListenTCP(addr.Network(), addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", addr)
	}

	return &listener{
		ln:              ln,
		logger:          logger,
		shutdownTimeout: shutdownTimeout,
		shutdownNow:     make(chan struct{}, 1),
	}, nil
}

// Serve dispatches accepted connections to handler and blocks until ctx is
// canceled (returning ctx.Err()) or accept fails.
func (l *listener) Serve(ctx context.Context, handler Handler) error {
	l.logger.Info("listening", "addr", l.ln.Addr().String())

	go func() {
		<-ctx.Done()

		if l.shutdownTimeout > 0 {
			l.logger.Info("draining before shutdown", "timeout", l.shutdownTimeout.String())
			select {
			case <-time.After(l.shutdownTimeout):
			case <-l.shutdownNow:
			}
		}

		l.mu.Lock()
		l.shutdown = true
		l.mu.Unlock()
		_ = l.ln.SetDeadline(time.Now())
	}()

	for {
		conn, err := l.ln.AcceptTCP()
		if err != nil {
			if l.isShutdown() {
				l.logger.Info("listener stopped", "addr", l.ln.Addr().String())
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return nil
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			l.logger.Error("accept failed", "error", err)
			return errors.Wrap(err, "accept")
		}

		l.logger.Debug("accepted connection", "addr", conn.RemoteAddr().String())
		_ = conn.SetNoDelay(true)
		handler.Handle(conn)
	}
}

// Close stops accepting immediately, skipping any remaining drain time.
func (l *listener) Close() error {
	l.mu.Lock()
	l.shutdown = true
	l.mu.Unlock()

	select {
	case l.shutdownNow <- struct{}{}:
	default:
	}

	return l.ln.Close()
}

// Addr returns the bound address.
func (l *listener) Addr() net.Addr {
	return l.ln.Addr()
}

func (l *listener) isShutdown() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shutdown
}
