package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vsignal/vsm/internal/capture"
	"github.com/vsignal/vsm/internal/policy"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	Root             *RootOptions
	SignalNumberFile string
	InitialState     string
	Log              string
	Rate             float64
	CaptureLog       string
	TraceDB          string
}

// NewReplayCommand creates the replay command: re-feed a capture log
// through the rules at a scaled rate.
func NewReplayCommand(root *RootOptions) *cobra.Command {
	opts := &ReplayOptions{Root: root}

	cmd := &cobra.Command{
		Use:   "replay <rules.yaml>",
		Short: "Replay a capture log through the policy engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.SignalNumberFile, "signal-number-file", "",
		".vsi file which maps all signal names to numbers")
	cmd.Flags().StringVar(&opts.InitialState, "initial-state", "",
		"initial state, yaml file")
	cmd.Flags().StringVar(&opts.Log, "log", "",
		"capture log to replay")
	cmd.Flags().Float64Var(&opts.Rate, "rate", 100,
		"replay rate as a percentage of recorded timing (100 = real time)")
	cmd.Flags().StringVar(&opts.CaptureLog, "capture-log", "",
		"record the replayed inputs to a fresh capture log")
	cmd.Flags().StringVar(&opts.TraceDB, "trace-db", "",
		"record all signal traffic to this sqlite trace store")
	_ = cmd.MarkFlagRequired("signal-number-file")
	_ = cmd.MarkFlagRequired("log")

	return cmd
}

func runReplay(cmd *cobra.Command, opts *ReplayOptions, rulesPath string) error {
	log := slog.Default()

	if !policy.ValidReplayRate(opts.Rate) {
		return fmt.Errorf("replay rate must be greater than %v and at most %v",
			policy.ReplayRateMin, policy.ReplayRateMax)
	}

	sess, err := loadSession(rulesPath, opts.SignalNumberFile, opts.InitialState)
	if err != nil {
		return err
	}

	events, err := capture.Load(opts.Log)
	if err != nil {
		return err
	}

	sinks, cleanup, err := buildSinks(cmd, opts.CaptureLog, opts.TraceDB, rulesPath, log)
	if err != nil {
		return err
	}
	defer cleanup()

	engine := policy.New(sess.tree, sess.smap,
		policy.WithSink(policy.MultiSink(sinks)),
		policy.WithViolationSink(newViolationWriter(cmd.ErrOrStderr())),
		policy.WithLogger(log),
		policy.WithReplay(true),
	)
	engine.Seed(sess.seed)

	clock := policy.NewScaledClock(opts.Rate)
	loop := policy.NewLoop(engine, clock)
	go func() {
		if err := capture.NewReplayer(events, clock, loop, log).Run(cmd.Context()); err != nil {
			log.Error("replay aborted", "error", err)
		}
	}()

	return ignoreCancel(loop.Run(cmd.Context()))
}
