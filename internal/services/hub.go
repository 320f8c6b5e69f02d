package services

import (
	"log/slog"
	"sync"

	"github.com/redpesk-addons/afb-jscli/internal/wsapi"
)

type event struct {
	id   uint16
	name string
}

type member struct {
	announced map[uint16]bool
	subs      map[uint16]bool
}

// hub tracks the connections of a service and fans events out to them.
// Event ids are allocated per hub and announced lazily to each connection.
type hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	nextID  uint16
	events  map[string]*event
	members map[*wsapi.Conn]*member
}

func newHub(logger *slog.Logger) *hub {
	return &hub{
		logger:  logger,
		events:  make(map[string]*event),
		members: make(map[*wsapi.Conn]*member),
	}
}

func (h *hub) join(c *wsapi.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.members[c] = &member{announced: make(map[uint16]bool), subs: make(map[uint16]bool)}
}

func (h *hub) leave(c *wsapi.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.members, c)
}

func (h *hub) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.members)
}

// create returns the event registered under key, creating it when absent.
func (h *hub) create(key, name string) *event {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ev, ok := h.events[key]; ok {
		return ev
	}
	h.nextID++
	if h.nextID == 0 {
		h.nextID = 1
	}
	ev := &event{id: h.nextID, name: name}
	h.events[key] = ev
	return ev
}

func (h *hub) lookup(key string) *event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.events[key]
}

func (h *hub) subscribe(req *wsapi.Request, ev *event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := req.Conn()
	m := h.members[c]
	if m == nil {
		return wsapi.ErrNotConnected
	}
	if err := h.announce(c, m, ev); err != nil {
		return err
	}
	if err := req.Subscribe(ev.id); err != nil {
		return err
	}
	m.subs[ev.id] = true
	return nil
}

func (h *hub) unsubscribe(req *wsapi.Request, ev *event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := h.members[req.Conn()]
	if m == nil || !m.subs[ev.id] {
		return nil
	}
	delete(m.subs, ev.id)
	return req.Unsubscribe(ev.id)
}

// push sends data to the subscribers of ev and returns how many got it.
func (h *hub) push(ev *event, data any) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for c, m := range h.members {
		if !m.subs[ev.id] {
			continue
		}
		if err := c.EventPush(ev.id, data); err != nil {
			h.logger.Warn("push failed", "event", ev.name, "error", err)
			continue
		}
		n++
	}
	return n
}

// remove withdraws the event under key from every connection it was
// announced to.
func (h *hub) remove(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	ev, ok := h.events[key]
	if !ok {
		return false
	}
	delete(h.events, key)
	for c, m := range h.members {
		if !m.announced[ev.id] {
			continue
		}
		delete(m.announced, ev.id)
		delete(m.subs, ev.id)
		if err := c.EventRemove(ev.id); err != nil {
			h.logger.Warn("event remove failed", "event", ev.name, "error", err)
		}
	}
	return true
}

// broadcast sends a broadcast frame to every connection.
func (h *hub) broadcast(name string, data any) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for c := range h.members {
		if _, err := c.EventBroadcast(name, data, 0); err != nil {
			h.logger.Warn("broadcast failed", "event", name, "error", err)
			continue
		}
		n++
	}
	return n
}

func (h *hub) announce(c *wsapi.Conn, m *member, ev *event) error {
	if m.announced[ev.id] {
		return nil
	}
	if err := c.EventCreate(ev.id, ev.name); err != nil {
		return err
	}
	m.announced[ev.id] = true
	return nil
}
