package services

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/redpesk-addons/afb-jscli/internal/wsapi"
)

// ErrUnknownService is returned by New for unregistered names.
var ErrUnknownService = errors.New("unknown service")

// Reply statuses used by the services.
const (
	StatusFailed         = "failed"
	StatusInvalidRequest = "invalid-request"
	StatusInvalidArgs    = "invalid-args"
	StatusUnknownVerb    = "unknown-verb"
)

// Service serves the api of accepted connections.
type Service interface {
	// Name is the api name, used as prefix of event names.
	Name() string
	// Attach installs the service as handler of c. It is meant to be the
	// onIncoming callback of a wsapi.Server.
	Attach(c *wsapi.Conn)
}

var registry = map[string]func(*slog.Logger) Service{
	"echo":   func(l *slog.Logger) Service { return NewEcho(l) },
	"hello":  func(l *slog.Logger) Service { return NewHello(l) },
	"pubsub": func(l *slog.Logger) Service { return NewPubSub(l) },
}

// New returns the service registered under name.
func New(name string, logger *slog.Logger) (Service, error) {
	mk, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownService, name, Names())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return mk(logger.With("service", name)), nil
}

// Names lists the registered services.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// reply answers req, logging transport failures.
func reply(logger *slog.Logger, req *wsapi.Request, result any, status, info string) {
	if err := req.Reply(result, status, info); err != nil {
		logger.Warn("reply failed", "verb", req.Verb, "error", err)
	}
}

func argString(args any, key string) (string, bool) {
	m, ok := args.(map[string]any)
	if !ok {
		return "", false
	}
	s, ok := m[key].(string)
	return s, ok && s != ""
}

func argValue(args any, key string) any {
	m, _ := args.(map[string]any)
	return m[key]
}
