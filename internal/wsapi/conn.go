package wsapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/redpesk-addons/afb-jscli/internal/endpoint"
	"github.com/redpesk-addons/afb-jscli/internal/ident"
	"github.com/redpesk-addons/afb-jscli/internal/loop"
)

// ErrNotConnected is returned once the connection is closed.
var ErrNotConnected = errors.New("wsapi: not connected")

// Reply statuses synthesized locally when a call cannot complete.
const (
	StatusDisconnected   = "disconnected"
	StatusInvalidRequest = "invalid-request"
)

// Reply is the completion of a call.
type Reply struct {
	Result any
	// Error is empty when the peer reported no error.
	Error string
	Info  string
}

// Succeeded reports whether the peer reported no error. An explicit
// "success" status counts as no error.
func (r Reply) Succeeded() bool {
	return r.Error == "" || r.Error == "success"
}

// Option configures a Conn or a Server.
type Option func(*config)

type config struct {
	dialer  *websocket.Dialer
	logger  *slog.Logger
	ids     ident.Generator
	handler Handler
}

func newConfig(opts []Option) config {
	cfg := config{
		logger: slog.Default(),
		ids:    ident.UUIDv7{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithDialer sets the base websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *config) {
		c.dialer = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithIDGenerator sets the generator of broadcast uuids.
func WithIDGenerator(g ident.Generator) Option {
	return func(c *config) {
		c.ids = g
	}
}

// WithHandler sets the initial handler. Without one, a BaseHandler logging
// to the configured logger is used.
func WithHandler(h Handler) Option {
	return func(c *config) {
		c.handler = h
	}
}

// Conn is one end of an api connection.
type Conn struct {
	ws     *websocket.Conn
	lp     *loop.Loop
	logger *slog.Logger
	ids    ident.Generator

	writeMu sync.Mutex

	mu        sync.Mutex
	handler   Handler
	nextID    uint64
	calls     map[uint64]func(Reply)
	describes map[uint64]func(any)
	closed    bool
	sessionID int
	tokenID   int
	creds     string
}

// Dial connects to uri. Callbacks are posted to lp.
func Dial(ctx context.Context, uri string, lp *loop.Loop, opts ...Option) (*Conn, error) {
	cfg := newConfig(opts)

	ep, err := endpoint.Parse(uri)
	if err != nil {
		return nil, err
	}
	dialer := ep.Dialer(cfg.dialer)
	dialer.Subprotocols = []string{Subprotocol}

	ws, _, err := dialer.DialContext(ctx, ep.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("wsapi: dial %s: %w", uri, err)
	}

	c := newConn(ws, lp, cfg, cfg.logger.With("uri", uri))
	c.start()
	c.logger.Debug("wsapi connected")
	return c, nil
}

func newConn(ws *websocket.Conn, lp *loop.Loop, cfg config, logger *slog.Logger) *Conn {
	h := cfg.handler
	if h == nil {
		h = BaseHandler{Logger: logger}
	}
	return &Conn{
		ws:        ws,
		lp:        lp,
		logger:    logger,
		ids:       cfg.ids,
		handler:   h,
		calls:     make(map[uint64]func(Reply)),
		describes: make(map[uint64]func(any)),
	}
}

func (c *Conn) start() {
	go c.readLoop()
}

// SetHandler replaces the handler for subsequent traffic.
func (c *Conn) SetHandler(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Handler returns the current handler.
func (c *Conn) Handler() Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler
}

// SetSession selects the session id sent with subsequent calls; 0 clears it.
func (c *Conn) SetSession(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

// SessionID returns the session id sent with calls.
func (c *Conn) SessionID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// SetToken selects the token id sent with subsequent calls; 0 clears it.
func (c *Conn) SetToken(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokenID = id
}

// TokenID returns the token id sent with calls.
func (c *Conn) TokenID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokenID
}

// SetCreds sets the user credentials sent with subsequent calls.
func (c *Conn) SetCreds(creds string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = creds
}

// IsConnected reports whether the connection is still open.
func (c *Conn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Call calls verb with args. done receives the reply exactly once, from the
// loop goroutine, even when Call returns an error.
func (c *Conn) Call(verb string, args any, done func(Reply)) error {
	data, err := encodeData(args)
	if err != nil {
		c.complete(done, Reply{Error: StatusInvalidRequest, Info: err.Error()})
		return fmt.Errorf("wsapi: call %s: %w", verb, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.complete(done, disconnected(ErrNotConnected))
		return ErrNotConnected
	}
	c.nextID++
	id := c.nextID
	c.calls[id] = done
	f := Frame{
		Type:    TypeCall,
		ID:      id,
		Verb:    verb,
		Data:    data,
		Session: c.sessionID,
		Token:   c.tokenID,
		Creds:   c.creds,
	}
	c.mu.Unlock()

	if err := c.send(f); err != nil {
		if cb := c.takeCall(id); cb != nil {
			c.complete(cb, disconnected(err))
		}
		return fmt.Errorf("wsapi: call %s: %w", verb, err)
	}
	return nil
}

// Describe asks the peer for its api description. done receives it exactly
// once; a nil description is delivered if the connection fails.
func (c *Conn) Describe(done func(description any)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.post(func() { done(nil) })
		return ErrNotConnected
	}
	c.nextID++
	id := c.nextID
	c.describes[id] = done
	c.mu.Unlock()

	if err := c.send(Frame{Type: TypeDescribe, ID: id}); err != nil {
		if cb := c.takeDescribe(id); cb != nil {
			c.post(func() { cb(nil) })
		}
		return fmt.Errorf("wsapi: describe: %w", err)
	}
	return nil
}

// SessionCreate announces session id under name.
func (c *Conn) SessionCreate(id int, name string) error {
	return c.send(Frame{Type: TypeSessionCreate, Session: id, Name: name})
}

// SessionRemove withdraws session id.
func (c *Conn) SessionRemove(id int) error {
	return c.send(Frame{Type: TypeSessionRemove, Session: id})
}

// TokenCreate announces token id with value name.
func (c *Conn) TokenCreate(id int, name string) error {
	return c.send(Frame{Type: TypeTokenCreate, Token: id, Name: name})
}

// TokenRemove withdraws token id.
func (c *Conn) TokenRemove(id int) error {
	return c.send(Frame{Type: TypeTokenRemove, Token: id})
}

// EventCreate announces event id under name.
func (c *Conn) EventCreate(id uint16, name string) error {
	return c.send(Frame{Type: TypeEventCreate, Event: id, Name: name})
}

// EventRemove withdraws event id.
func (c *Conn) EventRemove(id uint16) error {
	return c.send(Frame{Type: TypeEventRemove, Event: id})
}

// EventPush pushes data on event id to subscribed peers.
func (c *Conn) EventPush(id uint16, data any) error {
	raw, err := encodeData(data)
	if err != nil {
		return err
	}
	return c.send(Frame{Type: TypeEventPush, Event: id, Data: raw})
}

// EventUnexpected tells the peer that event id was not expected.
func (c *Conn) EventUnexpected(id uint16) error {
	return c.send(Frame{Type: TypeEventUnexpected, Event: id})
}

// EventBroadcast broadcasts data under name and returns the broadcast uuid.
func (c *Conn) EventBroadcast(name string, data any, hops int) (string, error) {
	raw, err := encodeData(data)
	if err != nil {
		return "", err
	}
	uuid := c.ids.Generate()
	return uuid, c.send(Frame{Type: TypeEventBroadcast, Name: name, Data: raw, Hops: hops, UUID: uuid})
}

// Disconnect closes the connection. Pending calls complete as disconnected
// and the handler's OnHangup runs. It does nothing once the connection is
// closed.
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

func (c *Conn) send(f Frame) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	data, err := EncodeFrame(f)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("wsapi: write %s: %w", f.Type, err)
	}
	return nil
}

func (c *Conn) post(fn func()) {
	if !c.lp.Post(fn) {
		c.logger.Warn("callback dropped, loop closed")
	}
}

func (c *Conn) complete(done func(Reply), r Reply) {
	c.post(func() { done(r) })
}

func disconnected(err error) Reply {
	return Reply{Error: StatusDisconnected, Info: err.Error()}
}

func (c *Conn) takeCall(id uint64) func(Reply) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cb, ok := c.calls[id]
	if ok {
		delete(c.calls, id)
	}
	return cb
}

func (c *Conn) takeDescribe(id uint64) func(any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cb, ok := c.describes[id]
	if ok {
		delete(c.describes, id)
	}
	return cb
}

// notify posts fn with the handler current at delivery time.
func (c *Conn) notify(fn func(h Handler)) {
	c.post(func() {
		if h := c.Handler(); h != nil {
			fn(h)
		}
	})
}

func (c *Conn) readLoop() {
	defer c.hangup()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("wsapi read ended", "error", err)
			}
			return
		}

		f, err := DecodeFrame(data)
		if err != nil {
			c.logger.Warn("dropping frame", "error", err)
			continue
		}
		if err := c.dispatch(f); err != nil {
			c.logger.Warn("dropping frame", "type", f.Type, "error", err)
		}
	}
}

func (c *Conn) dispatch(f Frame) error {
	switch f.Type {
	case TypeReply:
		cb := c.takeCall(f.ID)
		if cb == nil {
			return fmt.Errorf("reply to unknown call %d", f.ID)
		}
		result, err := decodeData(f.Data)
		if err != nil {
			c.complete(cb, Reply{Error: StatusInvalidRequest, Info: err.Error()})
			return err
		}
		c.complete(cb, Reply{Result: result, Error: f.Error, Info: f.Info})

	case TypeDescription:
		cb := c.takeDescribe(f.ID)
		if cb == nil {
			return fmt.Errorf("description for unknown request %d", f.ID)
		}
		desc, err := decodeData(f.Data)
		if err != nil {
			c.post(func() { cb(nil) })
			return err
		}
		c.post(func() { cb(desc) })

	case TypeCall:
		args, err := decodeData(f.Data)
		if err != nil {
			return err
		}
		req := &Request{
			conn:      c,
			id:        f.ID,
			Verb:      f.Verb,
			Args:      args,
			SessionID: f.Session,
			TokenID:   f.Token,
			Creds:     f.Creds,
		}
		c.notify(func(h Handler) { h.OnCall(req) })

	case TypeDescribe:
		req := &DescribeRequest{conn: c, id: f.ID}
		c.notify(func(h Handler) { h.OnDescribe(req) })

	case TypeEventPush:
		data, err := decodeData(f.Data)
		if err != nil {
			return err
		}
		c.notify(func(h Handler) { h.OnEventPush(f.Event, data) })

	case TypeEventBroadcast:
		data, err := decodeData(f.Data)
		if err != nil {
			return err
		}
		c.notify(func(h Handler) { h.OnEventBroadcast(f.Name, data, f.Hops, f.UUID) })

	case TypeEventCreate:
		c.notify(func(h Handler) { h.OnEventCreate(f.Event, f.Name) })
	case TypeEventRemove:
		c.notify(func(h Handler) { h.OnEventRemove(f.Event) })
	case TypeEventSubscribe:
		c.notify(func(h Handler) { h.OnEventSubscribe(f.Event) })
	case TypeEventUnsubscribe:
		c.notify(func(h Handler) { h.OnEventUnsubscribe(f.Event) })
	case TypeEventUnexpected:
		c.notify(func(h Handler) { h.OnEventUnexpected(f.Event) })
	case TypeSessionCreate:
		c.notify(func(h Handler) { h.OnSessionCreate(f.Session, f.Name) })
	case TypeSessionRemove:
		c.notify(func(h Handler) { h.OnSessionRemove(f.Session) })
	case TypeTokenCreate:
		c.notify(func(h Handler) { h.OnTokenCreate(f.Token, f.Name) })
	case TypeTokenRemove:
		c.notify(func(h Handler) { h.OnTokenRemove(f.Token) })
	}
	return nil
}

// hangup marks the connection closed, completes pending requests and
// notifies the handler once.
func (c *Conn) hangup() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	calls, describes := c.calls, c.describes
	c.calls = make(map[uint64]func(Reply))
	c.describes = make(map[uint64]func(any))
	c.mu.Unlock()

	_ = c.ws.Close()
	for _, cb := range calls {
		c.complete(cb, disconnected(ErrNotConnected))
	}
	for _, cb := range describes {
		c.post(func() { cb(nil) })
	}
	c.notify(func(h Handler) { h.OnHangup() })
	c.logger.Debug("wsapi hangup", "failed_calls", len(calls), "failed_describes", len(describes))
}
