package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vsignal/vsm/internal/capture"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	Root *RootOptions
	DB   string
	Run  string
}

// NewTraceCommand creates the trace command: inspect runs recorded in a
// sqlite trace store.
func NewTraceCommand(root *RootOptions) *cobra.Command {
	opts := &TraceOptions{Root: root}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect recorded signal traces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "sqlite trace store")
	cmd.Flags().StringVar(&opts.Run, "run", "", "dump one run's records instead of listing runs")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runTrace(cmd *cobra.Command, opts *TraceOptions) error {
	store, err := capture.OpenTraceStore(opts.DB)
	if err != nil {
		return err
	}
	defer store.Close()

	if opts.Run == "" {
		runs, err := store.Runs(cmd.Context())
		if err != nil {
			return err
		}
		for _, r := range runs {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s  %d records\n",
				r.ID, r.StartedAt, r.RulesPath, r.Records)
		}
		return nil
	}

	records, err := store.Records(cmd.Context(), opts.Run)
	if err != nil {
		return err
	}
	for _, rec := range records {
		indicator := ">"
		if rec.Direction == "out" {
			indicator = "<"
		}
		num := "[SIGNUM]"
		if rec.Signum.Valid {
			num = fmt.Sprintf("%d", rec.Signum.Int64)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d,%s,%s,%s\n",
			indicator, rec.TimeMs, rec.Name, num, rec.Value)
	}
	return nil
}
