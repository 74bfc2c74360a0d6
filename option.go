package msgstream

import (
	"time"
)

// options holds the configuration shared by channels and endpoints.
type options struct {
	logger Logger

	// notify is called after each item is queued for Receive.
	notify func()

	writeTimeout time.Duration // per-frame write deadline, zero for none

	// logArgs are attached to every log line of a channel.
	logArgs []any
}

// Option is a function that configures channel and endpoint options.
type Option func(*options)

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WriteTimeoutOption returns an Option that bounds each frame write.
// It only applies to streams that implement SetWriteDeadline (net.Conn does).
// A write that misses the deadline closes the connection like any write error.
func WriteTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = timeout
	}
}

// NotifyOption returns an Option that sets a hook fired whenever a new item
// is queued for Receive, for integration with external event loops.
// The hook runs on the connection's reader goroutine; it must not block and
// must not close the endpoint.
func NotifyOption(cb func()) Option {
	return func(o *options) {
		o.notify = cb
	}
}

func buildOptions(opt []Option) options {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)
	return opts
}

// checkOptions sets default values for unset options.
func checkOptions(opts *options) {
	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	if opts.notify == nil {
		opts.notify = func() {}
	}

	if opts.writeTimeout < 0 {
		opts.writeTimeout = 0
	}
}
