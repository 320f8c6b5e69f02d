package wsapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/redpesk-addons/afb-jscli/internal/endpoint"
	"github.com/redpesk-addons/afb-jscli/internal/loop"
)

// Server accepts api connections.
type Server struct {
	lp         *loop.Loop
	onIncoming func(*Conn)
	cfg        config
	upgrader   websocket.Upgrader

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

// NewServer creates a server. onIncoming runs on the loop goroutine for each
// accepted connection, before any of its frames are delivered, and
// typically installs a Handler with SetHandler.
func NewServer(lp *loop.Loop, onIncoming func(*Conn), opts ...Option) *Server {
	return &Server{
		lp:         lp,
		onIncoming: onIncoming,
		cfg:        newConfig(opts),
		upgrader:   websocket.Upgrader{Subprotocols: []string{Subprotocol}},
		conns:      make(map[*Conn]struct{}),
	}
}

// ServeHTTP upgrades the request to an api connection.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.cfg.logger.Warn("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newConn(ws, s.lp, s.cfg, s.cfg.logger.With("remote", r.RemoteAddr))
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	accepted := s.lp.Post(func() {
		if s.onIncoming != nil {
			s.onIncoming(c)
		}
		c.start()
	})
	if !accepted {
		s.drop(c)
		_ = ws.Close()
		return
	}
	c.logger.Debug("wsapi accepted")
}

// Len returns the number of connections accepted and not yet closed by
// CloseAll.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// CloseAll disconnects every accepted connection.
func (s *Server) CloseAll() {
	s.mu.Lock()
	conns := s.conns
	s.conns = make(map[*Conn]struct{})
	s.mu.Unlock()

	for c := range conns {
		_ = c.Disconnect()
	}
}

func (s *Server) drop(c *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

// Serve listens on uri and accepts connections until ctx is done.
func (s *Server) Serve(ctx context.Context, uri string) error {
	ep, err := endpoint.Parse(uri)
	if err != nil {
		return err
	}
	ln, err := ep.Listen(ctx)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle(ep.Path, s)
	hs := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() {
		errc <- hs.Serve(ln)
	}()
	s.cfg.logger.Info("serving", "uri", uri)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hs.Shutdown(shutdownCtx)
		s.CloseAll()
		return nil
	case err := <-errc:
		s.CloseAll()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("wsapi: serve %s: %w", uri, err)
	}
}
