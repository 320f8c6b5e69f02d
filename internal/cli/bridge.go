package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"github.com/redpesk-addons/afb-jscli/internal/afb"
	"github.com/redpesk-addons/afb-jscli/internal/bridge"
	"github.com/redpesk-addons/afb-jscli/internal/diag"
	"github.com/redpesk-addons/afb-jscli/internal/session"
)

// BridgeOptions holds flags for the bridge command.
type BridgeOptions struct {
	*RootOptions
	Source      string
	Verbs       []string
	Redis       string
	RedisPrefix string
	RedisMaxLen int64
	Sink        string
	SinkVerb    string
}

// NewBridgeCommand creates the bridge command.
func NewBridgeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BridgeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Forward pushed events to a time-series store",
		Long: `Subscribe to verbs of a source binding and forward every pushed event
as {class, data, timestamp} to redis streams or to a time-series binding.

Subscriptions are reported like call_success assertions.

Examples:
  afb-jscli bridge --source unix:@modbus --verbs 1510SP/dig,1510SP/ana --redis localhost:6379
  afb-jscli bridge --source unix:@modbus --verbs 1510SP/dig --sink unix:@redis`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridge(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Source, "source", "", "uri of the binding publishing events (required)")
	cmd.Flags().StringSliceVar(&opts.Verbs, "verbs", nil, "verbs to subscribe to (required)")
	cmd.Flags().StringVar(&opts.Redis, "redis", "", "redis address receiving XADD entries")
	cmd.Flags().StringVar(&opts.RedisPrefix, "redis-prefix", "afb", "prefix of redis stream names")
	cmd.Flags().Int64Var(&opts.RedisMaxLen, "redis-maxlen", 0, "approximate cap of each stream (0 for none)")
	cmd.Flags().StringVar(&opts.Sink, "sink", "", "uri of a time-series binding")
	cmd.Flags().StringVar(&opts.SinkVerb, "sink-verb", bridge.DefaultInsertVerb, "verb called on the time-series binding")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("verbs")
	cmd.MarkFlagsMutuallyExclusive("redis", "sink")
	cmd.MarkFlagsOneRequired("redis", "sink")

	return cmd
}

func runBridge(opts *BridgeOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d := diag.New(
		diag.WithWriter(cmd.OutOrStdout()),
		diag.WithLogger(logger),
		diag.WithExit(func(int) {}),
	)
	sess := session.New(session.WithDiagnostics(d), session.WithLogger(logger))

	var sink bridge.Sink
	if opts.Redis != "" {
		client := redis.NewClient(&redis.Options{Addr: opts.Redis})
		defer client.Close()

		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			return WrapExitError(ExitFailure, "failed to connect to Redis", err)
		}
		sink = bridge.NewRedisSink(client,
			bridge.WithPrefix(opts.RedisPrefix),
			bridge.WithMaxLen(opts.RedisMaxLen),
		)
	} else {
		target, err := afb.DialAPI(ctx, sess, opts.Sink,
			afb.WithLogger(logger),
			afb.WithHangupHook(cancel),
		)
		if err != nil {
			return WrapExitError(ExitFailure, "cannot reach sink", err)
		}
		defer target.Disconnect()
		sink = bridge.NewAPISink(target, opts.SinkVerb)
	}

	source, err := afb.DialAPI(ctx, sess, opts.Source,
		afb.WithLogger(logger),
		afb.WithHangupHook(cancel),
	)
	if err != nil {
		return WrapExitError(ExitFailure, "cannot reach source", err)
	}
	defer source.Disconnect()

	b := bridge.New(source, sink, bridge.WithLogger(logger))
	if err := b.Subscribe(opts.Verbs...); err != nil {
		return WrapExitError(ExitFailure, "cannot subscribe", err)
	}

	waitErr := sess.WaitForever(ctx)
	forwarded, failed := b.Stats()
	logger.Info("bridge stopped", "forwarded", forwarded, "failed", failed)
	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		return WrapExitError(ExitFailure, "bridge failed", waitErr)
	}
	if _, _, failures := d.Counts(); failures > 0 {
		return NewExitError(ExitFailure, "subscription failed")
	}
	return nil
}
