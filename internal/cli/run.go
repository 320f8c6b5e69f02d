package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/redpesk-addons/afb-jscli/internal/afb"
	"github.com/redpesk-addons/afb-jscli/internal/diag"
	"github.com/redpesk-addons/afb-jscli/internal/journal"
	"github.com/redpesk-addons/afb-jscli/internal/scenario"
	"github.com/redpesk-addons/afb-jscli/internal/session"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Mode          string
	StopOnFailure bool
	Journal       string
	Timeout       time.Duration
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>...",
		Short: "Run test scenarios",
		Long: `Run scenario files (YAML or CUE) in order on a single report.

Assertions are reported on stdout, as TAP by default. Flags override the
options block of the scenarios. With --journal every assertion is also
stored in a SQLite journal readable with the report command.

Exit codes:
  0 - All assertions passed
  1 - An assertion failed or a scenario could not complete
  2 - Command error (unreadable scenario, unusable journal, etc.)

Examples:
  afb-jscli run hello.yaml
  afb-jscli run --mode success --stop-on-failure a.yaml b.cue
  afb-jscli run --journal results.db --timeout 30s hello.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var overrides diag.Config
			if cmd.Flags().Changed("mode") {
				overrides.Mode = &opts.Mode
			}
			if cmd.Flags().Changed("stop-on-failure") {
				overrides.StopOnFailure = &opts.StopOnFailure
			}
			return runScenarios(opts, overrides, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Mode, "mode", "tap", "report mode (tap|old|success)")
	cmd.Flags().BoolVar(&opts.StopOnFailure, "stop-on-failure", false, "exit on the first failed assertion")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "record assertions in this SQLite journal")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", time.Minute, "bound of each wait step without timeout (0 waits forever)")

	return cmd
}

// exitRequest is raised by the diagnostics exit hook and recovered by
// catchExit, so that stop-on-failure unwinds the run instead of ending the
// process.
type exitRequest struct {
	code int
}

func catchExit(fn func()) (code int, exited bool) {
	defer func() {
		if r := recover(); r != nil {
			req, ok := r.(exitRequest)
			if !ok {
				panic(r)
			}
			code, exited = req.code, true
		}
	}()
	fn()
	return ExitSuccess, false
}

func runScenarios(opts *RunOptions, overrides diag.Config, files []string, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	scenarios := make([]*scenario.Scenario, 0, len(files))
	names := make([]string, 0, len(files))
	for _, file := range files {
		sc, err := scenario.Load(file)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("cannot load %s", file), err)
		}
		scenarios = append(scenarios, sc)
		names = append(names, sc.Name)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	diagOpts := []diag.Option{
		diag.WithWriter(cmd.OutOrStdout()),
		diag.WithLogger(logger),
		diag.WithExit(func(code int) { panic(exitRequest{code: code}) }),
	}

	var run *journal.Run
	if opts.Journal != "" {
		j, err := journal.Open(opts.Journal)
		if err != nil {
			return WrapExitError(ExitCommandError, "cannot open journal", err)
		}
		defer func() {
			if err := j.Close(); err != nil {
				logger.Error("error closing journal", "error", err)
			}
		}()
		run, err = j.BeginRun(ctx, strings.Join(names, ","))
		if err != nil {
			return WrapExitError(ExitCommandError, "cannot start journal run", err)
		}
		logger.Info("journaling", "path", opts.Journal, "run", run.ID())
		diagOpts = append(diagOpts, diag.WithRecorder(run))
	}

	d := diag.New(diagOpts...)
	runnerOpts := []scenario.Option{
		scenario.WithLogger(logger),
		scenario.WithFacadeOptions(afb.WithLogger(logger)),
		scenario.WithOverrides(overrides),
		scenario.WithSettleTimeout(opts.Timeout),
	}

	code, _ := catchExit(func() {
		for _, sc := range scenarios {
			err := runScenario(ctx, d, sc, logger, runnerOpts)
			if err == nil {
				continue
			}
			logger.Error("scenario did not complete", "scenario", sc.Name, "error", err)
			d.Failure(map[string]any{"scenario": sc.Name, "error": err.Error()})
			if errors.Is(err, context.Canceled) {
				break
			}
		}
		d.Terminate()
	})

	if run != nil {
		if err := run.Finish(context.Background(), code); err != nil {
			logger.Error("error closing journal run", "error", err)
		}
	}

	if code != ExitSuccess {
		tests, _, failures := d.Counts()
		return NewExitError(code, fmt.Sprintf("%d of %d assertions failed", failures, tests))
	}
	return nil
}

// runScenario runs sc on a session of its own, sharing the report d, so
// that nothing a scenario leaves behind reaches the next one.
func runScenario(ctx context.Context, d *diag.Diagnostics, sc *scenario.Scenario, logger *slog.Logger, opts []scenario.Option) error {
	sess := session.New(session.WithDiagnostics(d), session.WithLogger(logger))
	defer sess.Loop().Close()
	return scenario.NewRunner(sess, opts...).Run(ctx, sc)
}

// commandContext returns the command's context, or a background context
// when the command is executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
