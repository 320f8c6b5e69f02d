package wsj1

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/redpesk-addons/afb-jscli/internal/endpoint"
	"github.com/redpesk-addons/afb-jscli/internal/loop"
)

// ErrNotConnected is returned by Call once the connection is closed.
var ErrNotConnected = errors.New("wsj1: not connected")

// StatusDisconnected is the request status of replies synthesized for calls
// that cannot complete because the connection is gone.
const StatusDisconnected = "disconnected"

// Handler receives unsolicited traffic. Methods run on the loop goroutine.
type Handler interface {
	// OnEvent is called for every event frame.
	OnEvent(name string, data any)
	// OnHangup is called once when the connection terminates.
	OnHangup()
}

// Conn is a client connection.
type Conn struct {
	ws      *websocket.Conn
	lp      *loop.Loop
	handler Handler
	logger  *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[string]func(any)
	closed  bool
}

// Option configures Dial.
type Option func(*dialConfig)

type dialConfig struct {
	dialer *websocket.Dialer
	logger *slog.Logger
}

// WithDialer sets the base websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *dialConfig) {
		c.dialer = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *dialConfig) {
		c.logger = l
	}
}

// Dial connects to uri and starts reading frames. Callbacks are posted to lp.
func Dial(ctx context.Context, uri string, lp *loop.Loop, h Handler, opts ...Option) (*Conn, error) {
	cfg := dialConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	ep, err := endpoint.Parse(uri)
	if err != nil {
		return nil, err
	}
	dialer := ep.Dialer(cfg.dialer)
	dialer.Subprotocols = []string{Subprotocol}

	ws, _, err := dialer.DialContext(ctx, ep.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("wsj1: dial %s: %w", uri, err)
	}

	c := &Conn{
		ws:      ws,
		lp:      lp,
		handler: h,
		logger:  cfg.logger.With("uri", uri),
		pending: make(map[string]func(any)),
	}
	go c.readLoop()

	c.logger.Debug("wsj1 connected")
	return c, nil
}

// IsConnected reports whether the connection is still open.
func (c *Conn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Call sends a call to api/verb. done receives the reply object exactly
// once, from the loop goroutine, even when Call returns an error.
func (c *Conn) Call(api, verb string, args any, done func(reply any)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.fail(done, ErrNotConnected)
		return ErrNotConnected
	}
	c.nextID++
	id := strconv.FormatUint(c.nextID, 10)
	c.pending[id] = done
	c.mu.Unlock()

	data, err := Encode(Message{Code: CodeCall, ID: id, Target: api + "/" + verb, Object: args})
	if err == nil {
		err = c.write(data)
	}
	if err != nil {
		if cb := c.take(id); cb != nil {
			c.fail(cb, err)
		}
		return fmt.Errorf("wsj1: call %s/%s: %w", api, verb, err)
	}
	return nil
}

// Disconnect closes the connection. Pending calls complete as disconnected.
// It does nothing once the connection is closed.
func (c *Conn) Disconnect() error {
	if !c.IsConnected() {
		return nil
	}
	c.writeMu.Lock()
	_ = c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.ws.Close()
}

func (c *Conn) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) take(id string) func(any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cb, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	return cb
}

func (c *Conn) fail(done func(any), err error) {
	reply := statusReply(StatusDisconnected, err.Error())
	if !c.lp.Post(func() { done(reply) }) {
		c.logger.Warn("completion lost, loop closed")
	}
}

func (c *Conn) readLoop() {
	defer c.hangup()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("wsj1 read ended", "error", err)
			}
			return
		}

		msg, err := Decode(data)
		if err != nil {
			c.logger.Warn("dropping frame", "error", err)
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Conn) dispatch(msg Message) {
	switch msg.Code {
	case CodeRetOK, CodeRetErr:
		cb := c.take(msg.ID)
		if cb == nil {
			c.logger.Warn("reply to unknown call", "id", msg.ID)
			return
		}
		reply := msg.Object
		c.lp.Post(func() { cb(reply) })

	case CodeEvent:
		name, data := msg.Target, msg.Object
		c.lp.Post(func() {
			if c.handler != nil {
				c.handler.OnEvent(name, data)
			}
		})

	case CodeCall:
		c.logger.Info("received call", "target", msg.Target, "args", msg.Object)
		out, err := Encode(Message{Code: CodeRetErr, ID: msg.ID, Object: statusReply("unhandled", "")})
		if err == nil {
			err = c.write(out)
		}
		if err != nil {
			c.logger.Warn("failed to answer call", "target", msg.Target, "error", err)
		}
	}
}

// hangup marks the connection closed, completes pending calls and notifies
// the handler.
func (c *Conn) hangup() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.pending
	c.pending = make(map[string]func(any))
	c.mu.Unlock()

	_ = c.ws.Close()
	for _, cb := range pending {
		c.fail(cb, ErrNotConnected)
	}
	c.lp.Post(func() {
		if c.handler != nil {
			c.handler.OnHangup()
		}
	})
	c.logger.Debug("wsj1 hangup", "failed_calls", len(pending))
}
