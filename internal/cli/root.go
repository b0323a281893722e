// Package cli wires the telsync commands: running the ingestion pipeline and
// generating synthetic substream fixtures.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/okian/telsync/pkg/logger"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Verbose bool
}

// NewRootCommand creates the root command for the telsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "telsync",
		Short: "Telescope raw-event ingestion pipeline",
		Long: `telsync merges per-chain telescope substreams into one event stream
ordered by event id and reconciles every event's timestamp from the
redundant hardware clocks (UCTS, Dragon, TIB).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logger.Init(); err != nil {
				return err
			}
			if opts.Verbose {
				return logger.SetLevelString("debug")
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewGenerateCommand(opts))

	return cmd
}
