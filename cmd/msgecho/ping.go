package main

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Zereker/msgstream"
	"github.com/Zereker/msgstream/text"
)

var (
	count       int
	pingTimeout time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Send pings to a msgecho server and wait for the pongs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("count") {
			if count < 1 {
				return errors.Errorf("count must be positive, got %d", count)
			}
			cfg.Count = count
		}
		return ping(cmd.Context(), cfg, pingTimeout, zerologAdapter{logger: logger})
	},
}

func init() {
	pingCmd.Flags().IntVarP(&count, "count", "c", 0, "number of pings to send (default 3)")
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", 5*time.Second, "how long to wait for each pong")
}

func ping(ctx context.Context, cfg config, timeout time.Duration, log msgstream.Logger) error {
	registry, err := newRegistry()
	if err != nil {
		return err
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, "dial %s", cfg.Addr)
	}

	client, err := msgstream.NewClient(conn, registry,
		msgstream.LoggerOption(log),
		msgstream.WriteTimeoutOption(cfg.WriteTimeout),
	)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer client.Dispose()

	for i := 0; i < cfg.Count; i++ {
		start := time.Now()
		body := "ping " + strconv.Itoa(i+1)
		if err := client.Send(text.Message{ID: pingTypeID, Body: body}); err != nil {
			return errors.Wrap(err, "send ping")
		}

		reply, err := receiveReply(ctx, client, timeout)
		if err != nil {
			return err
		}
		log.Info("pong", "seq", i+1, "body", reply.Body, "rtt", time.Since(start).String())
	}

	return client.Close()
}

func receiveReply(ctx context.Context, client *msgstream.Client, timeout time.Duration) (text.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	message, err := client.ReceiveContext(ctx)
	if err != nil {
		return text.Message{}, errors.Wrap(err, "wait for pong")
	}

	switch m := message.(type) {
	case text.Message:
		if m.ID == pongTypeID {
			return m, nil
		}
		return text.Message{}, errors.Errorf("unexpected reply type %d", m.ID)
	case msgstream.Sentinel:
		return text.Message{}, errors.Errorf("connection lost: %s", m)
	default:
		return text.Message{}, errors.Errorf("unexpected reply %T", message)
	}
}
