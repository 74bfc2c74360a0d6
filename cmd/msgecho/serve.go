package main

import (
	"context"
	"net"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
	"github.com/spf13/cobra"

	"github.com/Zereker/msgstream"
	"github.com/Zereker/msgstream/text"
)

var shutdownTimeout string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept connections and answer every ping with a pong",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("shutdown-timeout") {
			d, err := parseDuration("shutdown-timeout", shutdownTimeout)
			if err != nil {
				return err
			}
			cfg.ShutdownTimeout = d
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, zerologAdapter{logger: logger}, nil)
	},
}

func init() {
	serveCmd.Flags().StringVar(&shutdownTimeout, "shutdown-timeout", "", "how long to keep accepting after a shutdown signal")
}

// serve runs the echo server until ctx is canceled. ready, when set,
// receives the bound address once the listener is up.
func serve(ctx context.Context, cfg config, log msgstream.Logger, ready chan<- net.Addr) error {
	registry, err := newRegistry()
	if err != nil {
		return err
	}

	tcpAddr, err := net.ResolveTCPAddr("tcp", cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, "resolve %s", cfg.Addr)
	}

	server, err := msgstream.NewServer(registry,
		msgstream.LoggerOption(log),
		msgstream.WriteTimeoutOption(cfg.WriteTimeout),
	)
	if err != nil {
		return err
	}
	defer server.Dispose()

	ln, err := newListener(tcpAddr, log, cfg.ShutdownTimeout)
	if err != nil {
		return err
	}
	defer ln.Close()

	if ready != nil {
		ready <- ln.Addr()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- ln.Serve(ctx, HandlerFunc(func(conn *net.TCPConn) {
			id := uuid.NewV4()
			if err := server.AddConnection(id, conn); err != nil {
				log.Warn("connection refused", "conn_id", id.String(), "error", err)
			}
		}))
		_ = server.Close()
	}()

	if err := echo(server, log); err != nil {
		return err
	}

	if err := <-serveErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// echo answers pings until the server reports ShutdownRequested.
func echo(server *msgstream.Server, log msgstream.Logger) error {
	for {
		envelope, err := server.Receive()
		if err != nil {
			return err
		}

		id := envelope.ID.String()
		switch message := envelope.Message.(type) {
		case msgstream.Sentinel:
			switch message {
			case msgstream.ClientConnectionAdded:
				log.Info("client joined", "conn_id", id)
			case msgstream.ClientConnectionLost:
				log.Info("client left", "conn_id", id)
			case msgstream.ShutdownRequested:
				log.Info("shutdown requested")
				return nil
			}

		case text.Message:
			if message.ID != pingTypeID {
				log.Warn("unexpected message", "conn_id", id, "type_id", message.ID)
				continue
			}
			log.Debug("ping", "conn_id", id, "body", message.Body)

			err := server.Send(text.Message{ID: pongTypeID, Body: "pong"}, envelope.ID)
			if err != nil && !errors.Is(err, msgstream.ErrUnknownConnection) {
				log.Error("send pong failed", "conn_id", id, "error", err)
			}
		}
	}
}
