package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	Root             *RootOptions
	SignalNumberFile string
	Dump             bool
}

// NewValidateCommand creates the validate command: load and compile a rule
// set without running it, reporting the first fatal error with its
// location.
func NewValidateCommand(root *RootOptions) *cobra.Command {
	opts := &ValidateOptions{Root: root}

	cmd := &cobra.Command{
		Use:   "validate <rules.yaml>",
		Short: "Validate a rule file against its signal-number mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession(args[0], opts.SignalNumberFile, "")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (%d rules, %d signals mapped)\n",
				args[0], len(sess.tree.Roots), sess.smap.Len())
			if opts.Dump {
				fmt.Fprint(cmd.OutOrStdout(), sess.tree.Dump())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.SignalNumberFile, "signal-number-file", "",
		".vsi file which maps all signal names to numbers")
	cmd.Flags().BoolVar(&opts.Dump, "dump", false, "print the compiled rule tree")
	_ = cmd.MarkFlagRequired("signal-number-file")

	return cmd
}
