package wsj1

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message codes.
const (
	CodeCall   = 2
	CodeRetOK  = 3
	CodeRetErr = 4
	CodeEvent  = 5
)

// Subprotocol is negotiated during the websocket handshake.
const Subprotocol = "x-afb-ws-json1"

var errMalformed = errors.New("malformed wsj1 message")

// Message is one decoded frame.
type Message struct {
	Code int
	// ID correlates calls and replies.
	ID string
	// Target is "api/verb" for calls and "api/event" for events.
	Target string
	// Object is the call arguments, reply object or event data.
	Object any
	// Token is an optional authorization token carried by calls.
	Token string
}

// Encode serializes m.
func Encode(m Message) ([]byte, error) {
	var frame []any
	switch m.Code {
	case CodeCall:
		frame = []any{m.Code, m.ID, m.Target, m.Object}
		if m.Token != "" {
			frame = append(frame, m.Token)
		}
	case CodeRetOK, CodeRetErr:
		frame = []any{m.Code, m.ID, m.Object}
	case CodeEvent:
		frame = []any{m.Code, m.Target, m.Object}
	default:
		return nil, fmt.Errorf("%w: unknown code %d", errMalformed, m.Code)
	}
	return json.Marshal(frame)
}

// Decode parses a frame.
func Decode(data []byte) (Message, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return Message{}, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if len(parts) < 3 {
		return Message{}, fmt.Errorf("%w: %d elements", errMalformed, len(parts))
	}

	var m Message
	if err := json.Unmarshal(parts[0], &m.Code); err != nil {
		return Message{}, fmt.Errorf("%w: code: %v", errMalformed, err)
	}

	switch m.Code {
	case CodeCall:
		if len(parts) < 4 {
			return Message{}, fmt.Errorf("%w: call needs 4 elements", errMalformed)
		}
		if err := unmarshalAll(parts[1:4], &m.ID, &m.Target, &m.Object); err != nil {
			return Message{}, err
		}
		if len(parts) > 4 {
			if err := json.Unmarshal(parts[4], &m.Token); err != nil {
				return Message{}, fmt.Errorf("%w: token: %v", errMalformed, err)
			}
		}
	case CodeRetOK, CodeRetErr:
		if err := unmarshalAll(parts[1:3], &m.ID, &m.Object); err != nil {
			return Message{}, err
		}
	case CodeEvent:
		if err := unmarshalAll(parts[1:3], &m.Target, &m.Object); err != nil {
			return Message{}, err
		}
	default:
		return Message{}, fmt.Errorf("%w: unknown code %d", errMalformed, m.Code)
	}
	return m, nil
}

func unmarshalAll(parts []json.RawMessage, dst ...any) error {
	for i, p := range parts {
		if err := json.Unmarshal(p, dst[i]); err != nil {
			return fmt.Errorf("%w: element %d: %v", errMalformed, i+1, err)
		}
	}
	return nil
}

// statusReply builds an afb reply object carrying only a status.
func statusReply(status, info string) map[string]any {
	request := map[string]any{"status": status}
	if info != "" {
		request["info"] = info
	}
	return map[string]any{
		"jtype":    "afb-reply",
		"request":  request,
		"response": nil,
	}
}
