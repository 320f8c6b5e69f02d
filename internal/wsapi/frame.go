package wsapi

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Subprotocol is negotiated during the websocket handshake.
const Subprotocol = "x-afb-wsapi-json"

// Frame types.
const (
	TypeCall             = "call"
	TypeReply            = "reply"
	TypeDescribe         = "describe"
	TypeDescription      = "description"
	TypeEventCreate      = "event-create"
	TypeEventRemove      = "event-remove"
	TypeEventSubscribe   = "event-subscribe"
	TypeEventUnsubscribe = "event-unsubscribe"
	TypeEventPush        = "event-push"
	TypeEventBroadcast   = "event-broadcast"
	TypeEventUnexpected  = "event-unexpected"
	TypeSessionCreate    = "session-create"
	TypeSessionRemove    = "session-remove"
	TypeTokenCreate      = "token-create"
	TypeTokenRemove      = "token-remove"
)

// ErrInvalidFrame is returned by DecodeFrame for frames missing required
// fields or carrying an unknown type.
var ErrInvalidFrame = errors.New("invalid wsapi frame")

// Frame is the wire representation of every message. Identifier fields are
// non-zero when meaningful; zero means absent.
type Frame struct {
	Type    string          `json:"type"`
	ID      uint64          `json:"id,omitempty"`
	Verb    string          `json:"verb,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Info    string          `json:"info,omitempty"`
	Session int             `json:"session,omitempty"`
	Token   int             `json:"token,omitempty"`
	Creds   string          `json:"creds,omitempty"`
	Event   uint16          `json:"event,omitempty"`
	Name    string          `json:"name,omitempty"`
	Hops    int             `json:"hops,omitempty"`
	UUID    string          `json:"uuid,omitempty"`
}

// EncodeFrame serializes f.
func EncodeFrame(f Frame) ([]byte, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(f)
}

// DecodeFrame parses and validates a frame.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if err := f.validate(); err != nil {
		return Frame{}, err
	}
	return f, nil
}

func (f Frame) validate() error {
	var missing string
	switch f.Type {
	case TypeCall:
		switch {
		case f.ID == 0:
			missing = "id"
		case f.Verb == "":
			missing = "verb"
		}
	case TypeReply, TypeDescribe, TypeDescription:
		if f.ID == 0 {
			missing = "id"
		}
	case TypeEventSubscribe, TypeEventUnsubscribe:
		switch {
		case f.ID == 0:
			missing = "id"
		case f.Event == 0:
			missing = "event"
		}
	case TypeEventCreate:
		switch {
		case f.Event == 0:
			missing = "event"
		case f.Name == "":
			missing = "name"
		}
	case TypeEventRemove, TypeEventPush, TypeEventUnexpected:
		if f.Event == 0 {
			missing = "event"
		}
	case TypeEventBroadcast:
		switch {
		case f.Name == "":
			missing = "name"
		case f.UUID == "":
			missing = "uuid"
		}
	case TypeSessionCreate:
		switch {
		case f.Session == 0:
			missing = "session"
		case f.Name == "":
			missing = "name"
		}
	case TypeTokenCreate:
		switch {
		case f.Token == 0:
			missing = "token"
		case f.Name == "":
			missing = "name"
		}
	case TypeSessionRemove:
		if f.Session == 0 {
			missing = "session"
		}
	case TypeTokenRemove:
		if f.Token == 0 {
			missing = "token"
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidFrame, f.Type)
	}
	if missing != "" {
		return fmt.Errorf("%w: %s frame without %s", ErrInvalidFrame, f.Type, missing)
	}
	return nil
}

func encodeData(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode data: %w", err)
	}
	return data, nil
}

func decodeData(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	return v, nil
}
