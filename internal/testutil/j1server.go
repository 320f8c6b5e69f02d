package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/redpesk-addons/afb-jscli/internal/wsj1"
)

// J1Handler answers one wsj1 call. It returns the message code
// (wsj1.CodeRetOK or wsj1.CodeRetErr) and the reply object.
type J1Handler func(srv *J1Server, api, verb string, args any) (code int, reply any)

// J1Server is an in-process wsj1 peer for tests.
type J1Server struct {
	*httptest.Server

	handler J1Handler

	mu      sync.Mutex
	conns   []*websocket.Conn
	calls   []string
	replies []wsj1.Message
}

// NewJ1Server starts a server answering calls with handler. A nil handler
// serves the hello api (see HelloJ1). The server is closed on test cleanup.
func NewJ1Server(t *testing.T, handler J1Handler) *J1Server {
	t.Helper()
	if handler == nil {
		handler = HelloJ1
	}
	s := &J1Server{handler: handler}
	upgrader := websocket.Upgrader{Subprotocols: []string{wsj1.Subprotocol}}

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, ws)
		s.mu.Unlock()
		s.serve(ws)
	}))
	t.Cleanup(s.Close)
	return s
}

// URI returns the address clients dial.
func (s *J1Server) URI() string {
	return strings.TrimPrefix(s.URL, "http://") + "/api"
}

// Calls returns the "api/verb" targets received so far.
func (s *J1Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Replies returns the reply frames clients sent to unsolicited calls.
func (s *J1Server) Replies() []wsj1.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]wsj1.Message(nil), s.replies...)
}

// Event sends an event frame to every connected client.
func (s *J1Server) Event(name string, data any) {
	frame, err := wsj1.Encode(wsj1.Message{Code: wsj1.CodeEvent, Target: name, Object: data})
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ws := range s.conns {
		_ = ws.WriteMessage(websocket.TextMessage, frame)
	}
}

// Call sends an unsolicited call to every connected client.
func (s *J1Server) Call(id, target string, args any) {
	frame, err := wsj1.Encode(wsj1.Message{Code: wsj1.CodeCall, ID: id, Target: target, Object: args})
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ws := range s.conns {
		_ = ws.WriteMessage(websocket.TextMessage, frame)
	}
}

// DropClients closes every client connection abruptly.
func (s *J1Server) DropClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ws := range s.conns {
		_ = ws.Close()
	}
	s.conns = nil
}

func (s *J1Server) serve(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		msg, err := wsj1.Decode(data)
		if err != nil {
			continue
		}
		if msg.Code == wsj1.CodeRetOK || msg.Code == wsj1.CodeRetErr {
			s.mu.Lock()
			s.replies = append(s.replies, msg)
			s.mu.Unlock()
			continue
		}
		if msg.Code != wsj1.CodeCall {
			continue
		}

		api, verb, _ := strings.Cut(msg.Target, "/")
		s.mu.Lock()
		s.calls = append(s.calls, msg.Target)
		s.mu.Unlock()

		code, reply := s.handler(s, api, verb, msg.Object)
		if code == 0 {
			continue
		}
		out, err := wsj1.Encode(wsj1.Message{Code: code, ID: msg.ID, Object: reply})
		if err != nil {
			continue
		}
		s.mu.Lock()
		err = ws.WriteMessage(websocket.TextMessage, out)
		s.mu.Unlock()
		if err != nil {
			return
		}
	}
}

// J1Reply builds an afb reply object.
func J1Reply(status string, response any) map[string]any {
	return map[string]any{
		"jtype":    "afb-reply",
		"request":  map[string]any{"status": status},
		"response": response,
	}
}

// HelloJ1 mimics the hello binding used by the sample scripts:
//
//	ping       success, echoes args
//	pingnull   success, null response
//	pingfail   error, status "failed"
//	pingbug    error, status "invalid-request"
//	broadcast  emits event "hello/<args.name>" with args.data, then success
//	silent     never answers
//
// Any other verb is answered with status "unknown-verb".
func HelloJ1(srv *J1Server, api, verb string, args any) (int, any) {
	switch verb {
	case "ping":
		return wsj1.CodeRetOK, J1Reply("success", args)
	case "pingnull":
		return wsj1.CodeRetOK, J1Reply("success", nil)
	case "pingfail":
		return wsj1.CodeRetErr, J1Reply("failed", nil)
	case "pingbug":
		return wsj1.CodeRetErr, J1Reply("invalid-request", nil)
	case "broadcast":
		obj, _ := args.(map[string]any)
		name, _ := obj["name"].(string)
		go srv.Event(api+"/"+name, obj["data"])
		return wsj1.CodeRetOK, J1Reply("success", nil)
	case "silent":
		return 0, nil
	default:
		return wsj1.CodeRetErr, J1Reply("unknown-verb", nil)
	}
}
