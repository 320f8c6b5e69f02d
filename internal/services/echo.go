package services

import (
	"log/slog"

	"github.com/redpesk-addons/afb-jscli/internal/wsapi"
)

// Echo replies to every call with its arguments, the verb as info.
type Echo struct {
	logger *slog.Logger
}

// NewEcho creates the echo service.
func NewEcho(logger *slog.Logger) *Echo {
	if logger == nil {
		logger = slog.Default()
	}
	return &Echo{logger: logger}
}

func (e *Echo) Name() string { return "echo" }

func (e *Echo) Attach(c *wsapi.Conn) {
	c.SetHandler(echoHandler{BaseHandler: wsapi.BaseHandler{Logger: e.logger}})
}

type echoHandler struct {
	wsapi.BaseHandler
}

func (h echoHandler) OnCall(req *wsapi.Request) {
	h.Logger.Debug("echo", "verb", req.Verb, "args", req.Args)
	reply(h.Logger, req, req.Args, "", req.Verb)
}
