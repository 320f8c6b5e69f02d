package services

import (
	"log/slog"
	"strings"

	"github.com/redpesk-addons/afb-jscli/internal/wsapi"
)

// PubSub treats every verb as a topic. Calls carry {"action": ...}:
// SUBSCRIBE and UNSUBSCRIBE manage the caller's subscription to the topic
// event, PUSH sends "data" to the subscribers.
type PubSub struct {
	logger *slog.Logger
	hub    *hub
}

// NewPubSub creates the pubsub service.
func NewPubSub(logger *slog.Logger) *PubSub {
	if logger == nil {
		logger = slog.Default()
	}
	return &PubSub{logger: logger, hub: newHub(logger)}
}

func (s *PubSub) Name() string { return "pubsub" }

func (s *PubSub) Attach(c *wsapi.Conn) {
	s.hub.join(c)
	c.SetHandler(&pubsubHandler{BaseHandler: wsapi.BaseHandler{Logger: s.logger}, svc: s, conn: c})
}

// Publish pushes data on topic from the service side. It returns the number
// of subscribers reached.
func (s *PubSub) Publish(topic string, data any) int {
	ev := s.hub.lookup(topic)
	if ev == nil {
		return 0
	}
	return s.hub.push(ev, data)
}

type pubsubHandler struct {
	wsapi.BaseHandler
	svc  *PubSub
	conn *wsapi.Conn
}

func (h *pubsubHandler) OnHangup() {
	h.svc.hub.leave(h.conn)
	h.BaseHandler.OnHangup()
}

func (h *pubsubHandler) OnCall(req *wsapi.Request) {
	s := h.svc
	log := s.logger
	topic := req.Verb

	action, ok := argString(req.Args, "action")
	if !ok {
		reply(log, req, nil, StatusInvalidArgs, "action required")
		return
	}

	var err error
	var result any
	switch strings.ToUpper(action) {
	case "SUBSCRIBE":
		err = s.hub.subscribe(req, s.hub.create(topic, topic))
	case "UNSUBSCRIBE":
		if ev := s.hub.lookup(topic); ev != nil {
			err = s.hub.unsubscribe(req, ev)
		}
	case "PUSH":
		result = s.Publish(topic, argValue(req.Args, "data"))
	default:
		reply(log, req, nil, StatusInvalidArgs, "unknown action "+action)
		return
	}
	if err != nil {
		reply(log, req, nil, StatusFailed, err.Error())
		return
	}
	reply(log, req, result, "", "")
}
