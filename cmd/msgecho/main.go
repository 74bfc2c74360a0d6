// Command msgecho runs a ping/pong exchange over msgstream connections.
//
//	msgecho serve --addr 127.0.0.1:12345
//	msgecho ping --addr 127.0.0.1:12345 --count 5
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Zereker/msgstream"
	"github.com/Zereker/msgstream/text"
)

// Type ids of the two messages msgecho exchanges.
const (
	pingTypeID int32 = 7
	pongTypeID int32 = 8
)

var (
	cfgFile  string
	addr     string
	logLevel string

	cfg    config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "msgecho",
	Short:         "Exchange ping and pong messages over framed TCP connections",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig(cfgFile)
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("addr") {
			cfg.Addr = addr
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}

		logger, err = newLogger(os.Stderr, cfg.LogLevel)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (.toml, .yaml or .yml)")
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "", "address to listen on or dial (default \"127.0.0.1:12345\")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (default \"info\")")

	rootCmd.AddCommand(serveCmd, pingCmd)
}

func newRegistry() (*msgstream.Registry, error) {
	return msgstream.NewRegistry(text.New(pingTypeID), text.New(pongTypeID))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
