package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vsignal/vsm/internal/capture"
	"github.com/vsignal/vsm/internal/ipc"
	"github.com/vsignal/vsm/internal/policy"
	"github.com/vsignal/vsm/internal/rules"
	"github.com/vsignal/vsm/internal/signal"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	Root             *RootOptions
	SignalNumberFile string
	InitialState     string
	CaptureLog       string
	TraceDB          string
	IPC              string
	Addr             string
}

// NewRunCommand creates the run command: load rules, connect a transport,
// and drive the policy engine until the input ends.
func NewRunCommand(root *RootOptions) *cobra.Command {
	opts := &RunOptions{Root: root}

	cmd := &cobra.Command{
		Use:   "run <rules.yaml>",
		Short: "Run the policy engine against live signal input",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.SignalNumberFile, "signal-number-file", "",
		".vsi file which maps all signal names to numbers")
	cmd.Flags().StringVar(&opts.InitialState, "initial-state", "",
		"initial state, yaml file")
	cmd.Flags().StringVar(&opts.CaptureLog, "capture-log", "",
		"record incoming signals to this CSV capture log")
	cmd.Flags().StringVar(&opts.TraceDB, "trace-db", "",
		"record all signal traffic to this sqlite trace store")
	cmd.Flags().StringVar(&opts.IPC, "ipc", "stdio",
		"transport: stdio, tcp, or ws")
	cmd.Flags().StringVar(&opts.Addr, "addr", "",
		"transport address (host:port for tcp, URL for ws)")
	_ = cmd.MarkFlagRequired("signal-number-file")

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions, rulesPath string) error {
	log := slog.Default()

	sess, err := loadSession(rulesPath, opts.SignalNumberFile, opts.InitialState)
	if err != nil {
		return err
	}

	sinks, cleanup, err := buildSinks(cmd, opts.CaptureLog, opts.TraceDB, rulesPath, log)
	if err != nil {
		return err
	}
	defer cleanup()

	transport, echoOnly, err := openTransport(opts.IPC, opts.Addr)
	if err != nil {
		return err
	}
	defer transport.Close()
	if !echoOnly {
		sinks = append(sinks, &transportSink{t: transport, log: log})
	}

	engine := policy.New(sess.tree, sess.smap,
		policy.WithSink(policy.MultiSink(sinks)),
		policy.WithViolationSink(newViolationWriter(cmd.ErrOrStderr())),
		policy.WithLogger(log),
	)
	engine.Seed(sess.seed)

	loop := policy.NewLoop(engine, policy.NewSystemClock())
	go pump(transport, loop, sess.smap, log)

	return ignoreCancel(loop.Run(cmd.Context()))
}

// openTransport builds the transport for the --ipc flag. echoOnly is true
// for stdio, where emissions appear as session lines rather than being
// written back into the input stream.
func openTransport(kind, addr string) (t ipc.Transport, echoOnly bool, err error) {
	switch kind {
	case "stdio", "":
		return ipc.Stdio(), true, nil
	case "tcp":
		if addr == "" {
			return nil, false, fmt.Errorf("--ipc tcp requires --addr host:port")
		}
		t, err := ipc.DialTCP(addr)
		return t, false, err
	case "ws":
		if addr == "" {
			return nil, false, fmt.Errorf("--ipc ws requires --addr URL")
		}
		t, err := ipc.DialWebSocket(addr)
		return t, false, err
	default:
		return nil, false, fmt.Errorf("unknown ipc transport %q", kind)
	}
}

// buildSinks assembles the record sinks: session echo, capture log, and
// trace store.
func buildSinks(cmd *cobra.Command, captureLog, traceDB, rulesPath string, log *slog.Logger) ([]policy.Sink, func(), error) {
	sinks := []policy.Sink{policy.NewWriterSink(cmd.OutOrStdout())}
	var closers []func()
	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}

	if captureLog != "" {
		f, err := os.Create(captureLog)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("create capture log: %w", err)
		}
		w := capture.NewWriter(f)
		sinks = append(sinks, w)
		closers = append(closers, func() {
			if err := w.Flush(); err != nil {
				log.Error("capture log flush failed", "error", err)
			}
			f.Close()
		})
	}

	if traceDB != "" {
		store, err := capture.OpenTraceStore(traceDB)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		sink, err := capture.NewTraceSink(cmd.Context(), store, rulesPath, log)
		if err != nil {
			store.Close()
			cleanup()
			return nil, nil, err
		}
		sinks = append(sinks, sink)
		closers = append(closers, func() { store.Close() })
	}

	return sinks, cleanup, nil
}

// pump reads the transport until it ends and feeds parsed inputs into the
// driver loop. Transport errors are logged and the affected event dropped;
// they never become engine failures.
func pump(t ipc.Transport, loop *policy.Loop, smap *rules.SignalMap, log *slog.Logger) {
	defer loop.Stop()
	for {
		name, value, err := t.Receive()
		switch {
		case errors.Is(err, io.EOF):
			return
		case errors.Is(err, ipc.ErrMalformed):
			log.Info("skipping invalid message", "error", err)
			continue
		case err != nil:
			log.Error("transport receive failed", "error", err)
			return
		}

		if name == ipc.SignalQuit {
			return
		}

		// Inputs may arrive by numeric ID; translate at ingress.
		if num, numErr := strconv.ParseUint(name, 10, 32); numErr == nil {
			mapped, ok := smap.Name(uint32(num))
			if !ok {
				log.Error("unknown signal number", "num", num)
				continue
			}
			name = mapped
		}

		v, err := signal.ParseLiteral(value)
		if err != nil {
			log.Error("incorrect value", "signal", name, "value", value)
			continue
		}
		loop.Enqueue(policy.Input{Name: name, Value: v})
	}
}

// transportSink forwards emissions to a transport.
type transportSink struct {
	t   ipc.Transport
	log *slog.Logger
}

func (s *transportSink) Record(rec policy.Record) {
	if rec.Dir != policy.Outgoing {
		return
	}
	if err := s.t.Send(rec.Name, rec.Value.Render()); err != nil {
		s.log.Error("transport send failed", "signal", rec.Name, "error", err)
	}
}

// ignoreCancel maps context cancellation to a clean exit.
func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
