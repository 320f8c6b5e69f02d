package afb

import (
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/redpesk-addons/afb-jscli/internal/ident"
)

// EventHook observes received events. It runs on the loop goroutine before
// the event is accounted, so calls it issues keep the session busy.
type EventHook func(name string, data any)

// Option configures a facade.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	dialer  *websocket.Dialer
	ids     ident.Generator
	onEvent EventHook
	onHup   func()
}

func newOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithDialer sets the base websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithIDGenerator sets the generator of broadcast uuids (API only).
func WithIDGenerator(g ident.Generator) Option {
	return func(o *options) {
		o.ids = g
	}
}

// WithEventHook sets the hook run for every received event.
func WithEventHook(fn EventHook) Option {
	return func(o *options) {
		o.onEvent = fn
	}
}

// WithHangupHook sets the hook run when the connection terminates.
func WithHangupHook(fn func()) Option {
	return func(o *options) {
		o.onHup = fn
	}
}
