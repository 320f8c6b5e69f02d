// Package bridge forwards events pushed by an API peer to a storage sink.
//
// The source is typically a field bus binding publishing one event per
// verb: the bridge subscribes to each verb with {"action":"SUBSCRIBE"} and
// turns every received event into a Record whose class is the event name.
package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/redpesk-addons/afb-jscli/internal/afb"
)

// AutoTimestamp lets the sink choose the record's timestamp.
const AutoTimestamp = "*"

// Record is one forwarded event.
type Record struct {
	Class     string `json:"class"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

// Sink stores records.
type Sink interface {
	Insert(ctx context.Context, rec Record) error
}

// Bridge forwards the events of a source connection to a Sink.
type Bridge struct {
	source  *afb.API
	sink    Sink
	logger  *slog.Logger
	timeout time.Duration

	forwarded int
	failed    int
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = l
	}
}

// WithInsertTimeout bounds each sink insertion (default 5s).
func WithInsertTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		b.timeout = d
	}
}

// New creates a bridge and installs it as the event hook of source.
func New(source *afb.API, sink Sink, opts ...Option) *Bridge {
	b := &Bridge{
		source:  source,
		sink:    sink,
		logger:  slog.Default(),
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	source.SetEventHook(b.forward)
	return b
}

// Subscribe asks the source for the events of verbs. Each subscription is
// asserted like a call_success.
func (b *Bridge) Subscribe(verbs ...string) error {
	for _, verb := range verbs {
		if err := b.source.CallSuccess(verb, map[string]any{"action": "SUBSCRIBE"}); err != nil {
			return err
		}
		b.logger.Debug("subscribing", "verb", verb)
	}
	return nil
}

// Stats returns the number of records inserted and the number of failed
// insertions.
func (b *Bridge) Stats() (forwarded, failed int) {
	return b.forwarded, b.failed
}

func (b *Bridge) forward(name string, data any) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	rec := Record{Class: name, Data: data, Timestamp: AutoTimestamp}
	if err := b.sink.Insert(ctx, rec); err != nil {
		b.failed++
		b.logger.Warn("failed to forward event", "class", name, "error", err)
		return
	}
	b.forwarded++
	b.logger.Debug("forwarded event", "class", name)
}
