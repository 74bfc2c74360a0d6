package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/Zereker/msgstream"
)

func newLogger(out io.Writer, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Nop(), errors.Wrapf(err, "log level %q", level)
	}
	if out == nil {
		out = os.Stderr
	}

	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).Level(lvl).With().Timestamp().Str("app", "msgecho").Logger(), nil
}

// zerologAdapter lets the library log through zerolog.
type zerologAdapter struct {
	logger zerolog.Logger
}

var _ msgstream.Logger = zerologAdapter{}

func (a zerologAdapter) Debug(msg string, args ...any) { a.logger.Debug().Fields(args).Msg(msg) }
func (a zerologAdapter) Info(msg string, args ...any)  { a.logger.Info().Fields(args).Msg(msg) }
func (a zerologAdapter) Warn(msg string, args ...any)  { a.logger.Warn().Fields(args).Msg(msg) }
func (a zerologAdapter) Error(msg string, args ...any) { a.logger.Error().Fields(args).Msg(msg) }
