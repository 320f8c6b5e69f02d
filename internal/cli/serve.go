package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/redpesk-addons/afb-jscli/internal/loop"
	"github.com/redpesk-addons/afb-jscli/internal/services"
	"github.com/redpesk-addons/afb-jscli/internal/session"
	"github.com/redpesk-addons/afb-jscli/internal/wsapi"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve <service> <uri>",
		Short: "Serve a built-in service over the api protocol",
		Long: fmt.Sprintf(`Serve a built-in service until interrupted.

Services: %s

Examples:
  afb-jscli serve hello localhost:1234/hello
  afb-jscli serve pubsub unix:@modbus`, strings.Join(services.Names(), ", ")),
		Args:      cobra.ExactArgs(2),
		ValidArgs: services.Names(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, args[0], args[1], cmd)
		},
	}
	return cmd
}

func runServe(opts *RootOptions, name, uri string, cmd *cobra.Command) error {
	logger := newLogger(opts, cmd.ErrOrStderr())

	svc, err := services.New(name, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot serve", err)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess := session.New(session.WithLogger(logger))
	srv := wsapi.NewServer(sess.Loop(), svc.Attach, wsapi.WithLogger(logger))

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ctx, uri)
		cancel()
	}()

	waitErr := sess.WaitForever(ctx)
	if err := <-errc; err != nil {
		return WrapExitError(ExitFailure, "serve failed", err)
	}
	if waitErr != nil && !errors.Is(waitErr, context.Canceled) && !errors.Is(waitErr, loop.ErrClosed) {
		return WrapExitError(ExitFailure, "serve failed", waitErr)
	}
	logger.Info("service stopped", "service", svc.Name())
	return nil
}
