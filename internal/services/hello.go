package services

import (
	"log/slog"

	"github.com/redpesk-addons/afb-jscli/internal/wsapi"
)

// Hello is the reference api used by test scenarios.
//
//	ping        success, echoes the arguments
//	pingnull    success, null result
//	pingfail    error "failed"
//	pingbug     error "invalid-request"
//	broadcast   {name, data}: broadcasts hello/<name> to every connection
//	eventadd    {tag, name}: creates event hello/<name> known as tag
//	eventsub    {tag}: subscribes the caller
//	eventunsub  {tag}: unsubscribes the caller
//	eventpush   {tag, data}: pushes data to subscribers, result is their count
//	eventdel    {tag}: removes the event
type Hello struct {
	logger *slog.Logger
	hub    *hub
}

// NewHello creates the hello service.
func NewHello(logger *slog.Logger) *Hello {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hello{logger: logger, hub: newHub(logger)}
}

func (s *Hello) Name() string { return "hello" }

func (s *Hello) Attach(c *wsapi.Conn) {
	s.hub.join(c)
	c.SetHandler(&helloHandler{BaseHandler: wsapi.BaseHandler{Logger: s.logger}, svc: s, conn: c})
}

type helloHandler struct {
	wsapi.BaseHandler
	svc  *Hello
	conn *wsapi.Conn
}

func (h *helloHandler) OnHangup() {
	h.svc.hub.leave(h.conn)
	h.BaseHandler.OnHangup()
}

func (h *helloHandler) OnCall(req *wsapi.Request) {
	s := h.svc
	log := s.logger

	switch req.Verb {
	case "ping":
		reply(log, req, req.Args, "", "")
	case "pingnull":
		reply(log, req, nil, "", "")
	case "pingfail":
		reply(log, req, nil, StatusFailed, "")
	case "pingbug":
		reply(log, req, nil, StatusInvalidRequest, "")

	case "broadcast":
		name, ok := argString(req.Args, "name")
		if !ok {
			reply(log, req, nil, StatusInvalidArgs, "name required")
			return
		}
		n := s.hub.broadcast(s.Name()+"/"+name, argValue(req.Args, "data"))
		reply(log, req, n, "", "")

	case "eventadd":
		tag, okTag := argString(req.Args, "tag")
		name, okName := argString(req.Args, "name")
		if !okTag || !okName {
			reply(log, req, nil, StatusInvalidArgs, "tag and name required")
			return
		}
		if s.hub.lookup(tag) != nil {
			reply(log, req, nil, StatusFailed, "event exists")
			return
		}
		s.hub.create(tag, s.Name()+"/"+name)
		reply(log, req, nil, "", "")

	case "eventsub", "eventunsub", "eventpush", "eventdel":
		tag, ok := argString(req.Args, "tag")
		if !ok {
			reply(log, req, nil, StatusInvalidArgs, "tag required")
			return
		}
		ev := s.hub.lookup(tag)
		if ev == nil {
			reply(log, req, nil, StatusFailed, "no event "+tag)
			return
		}
		h.onEventVerb(req, tag, ev)

	default:
		reply(log, req, nil, StatusUnknownVerb, req.Verb)
	}
}

func (h *helloHandler) onEventVerb(req *wsapi.Request, tag string, ev *event) {
	s := h.svc
	log := s.logger

	var err error
	var result any
	switch req.Verb {
	case "eventsub":
		err = s.hub.subscribe(req, ev)
	case "eventunsub":
		err = s.hub.unsubscribe(req, ev)
	case "eventpush":
		result = s.hub.push(ev, argValue(req.Args, "data"))
	case "eventdel":
		s.hub.remove(tag)
	}
	if err != nil {
		reply(log, req, nil, StatusFailed, err.Error())
		return
	}
	reply(log, req, result, "", "")
}
