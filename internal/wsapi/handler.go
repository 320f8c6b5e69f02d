package wsapi

import (
	"errors"
	"log/slog"
	"sync/atomic"
)

// ErrAlreadyReplied is returned when a request is answered twice.
var ErrAlreadyReplied = errors.New("wsapi: request already replied")

// StatusUnhandled is the error sent back for calls nobody answers.
const StatusUnhandled = "unhandled"

// Handler receives the traffic a peer initiates. Methods run on the loop
// goroutine.
type Handler interface {
	OnHangup()
	OnCall(req *Request)
	OnDescribe(req *DescribeRequest)
	OnEventCreate(id uint16, name string)
	OnEventRemove(id uint16)
	OnEventSubscribe(id uint16)
	OnEventUnsubscribe(id uint16)
	OnEventPush(id uint16, data any)
	OnEventBroadcast(name string, data any, hops int, uuid string)
	OnEventUnexpected(id uint16)
	OnSessionCreate(id int, name string)
	OnSessionRemove(id int)
	OnTokenCreate(id int, name string)
	OnTokenRemove(id int)
}

// BaseHandler logs every notification. Calls are answered with
// StatusUnhandled and describe requests with a null description.
// Embed it to override only the methods of interest.
type BaseHandler struct {
	Logger *slog.Logger
}

func (h BaseHandler) log() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func (h BaseHandler) OnHangup() {
	h.log().Info("hangup")
}

func (h BaseHandler) OnCall(req *Request) {
	h.log().Info("received call",
		"verb", req.Verb, "args", req.Args,
		"session", req.SessionID, "token", req.TokenID, "creds", req.Creds)
	if err := req.Reply(nil, StatusUnhandled, ""); err != nil {
		h.log().Warn("reply failed", "verb", req.Verb, "error", err)
	}
}

func (h BaseHandler) OnDescribe(req *DescribeRequest) {
	h.log().Info("received describe")
	if err := req.Reply(nil); err != nil {
		h.log().Warn("description failed", "error", err)
	}
}

func (h BaseHandler) OnEventCreate(id uint16, name string) {
	h.log().Debug("event create", "event", id, "name", name)
}

func (h BaseHandler) OnEventRemove(id uint16) {
	h.log().Debug("event remove", "event", id)
}

func (h BaseHandler) OnEventSubscribe(id uint16) {
	h.log().Debug("event subscribe", "event", id)
}

func (h BaseHandler) OnEventUnsubscribe(id uint16) {
	h.log().Debug("event unsubscribe", "event", id)
}

func (h BaseHandler) OnEventPush(id uint16, data any) {
	h.log().Debug("event push", "event", id, "data", data)
}

func (h BaseHandler) OnEventBroadcast(name string, data any, hops int, uuid string) {
	h.log().Debug("event broadcast", "name", name, "data", data, "hops", hops, "uuid", uuid)
}

func (h BaseHandler) OnEventUnexpected(id uint16) {
	h.log().Debug("event unexpected", "event", id)
}

func (h BaseHandler) OnSessionCreate(id int, name string) {
	h.log().Debug("session create", "session", id, "name", name)
}

func (h BaseHandler) OnSessionRemove(id int) {
	h.log().Debug("session remove", "session", id)
}

func (h BaseHandler) OnTokenCreate(id int, name string) {
	h.log().Debug("token create", "token", id, "name", name)
}

func (h BaseHandler) OnTokenRemove(id int) {
	h.log().Debug("token remove", "token", id)
}

// Request is an inbound call. Reply must be called exactly once.
type Request struct {
	conn    *Conn
	id      uint64
	replied atomic.Bool

	Verb      string
	Args      any
	SessionID int
	TokenID   int
	Creds     string
}

// Conn returns the connection the call arrived on.
func (r *Request) Conn() *Conn {
	return r.conn
}

// Reply answers the call. errStatus is empty on success.
func (r *Request) Reply(result any, errStatus, info string) error {
	if r.replied.Swap(true) {
		return ErrAlreadyReplied
	}
	data, err := encodeData(result)
	if err != nil {
		return err
	}
	return r.conn.send(Frame{Type: TypeReply, ID: r.id, Data: data, Error: errStatus, Info: info})
}

// Subscribe subscribes the caller to the event id, which must have been
// announced with Conn.EventCreate.
func (r *Request) Subscribe(eventID uint16) error {
	return r.conn.send(Frame{Type: TypeEventSubscribe, ID: r.id, Event: eventID})
}

// Unsubscribe reverses Subscribe.
func (r *Request) Unsubscribe(eventID uint16) error {
	return r.conn.send(Frame{Type: TypeEventUnsubscribe, ID: r.id, Event: eventID})
}

// DescribeRequest is an inbound describe.
type DescribeRequest struct {
	conn    *Conn
	id      uint64
	replied atomic.Bool
}

// Reply sends the api description.
func (r *DescribeRequest) Reply(description any) error {
	if r.replied.Swap(true) {
		return ErrAlreadyReplied
	}
	data, err := encodeData(description)
	if err != nil {
		return err
	}
	return r.conn.send(Frame{Type: TypeDescription, ID: r.id, Data: data})
}
