package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/telsync/internal/gensub"
)

// GenerateOptions holds flags for the generate command.
type GenerateOptions struct {
	*RootOptions
	Dir           string
	Name          string
	Substreams    int
	Events        int
	TelescopeID   uint16
	Modules       []uint
	Seed          int64
	Period        time.Duration
	LoseUCTSEvery int
	OmitUCTSEvery int
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{RootOptions: rootOpts}
	defaults := gensub.DefaultConfig(".")

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate synthetic substream files",
		Long: `Generate substream files with consistent hardware counters for
exercising the pipeline without telescope data. Events are distributed
round-robin across the files, so merging them reproduces the id sequence.

Example:
  telsync generate --dir ./fixtures --events 10000 --substreams 4
  telsync generate --lose-ucts-every 500   # induce clock jumps`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Dir, "dir", ".", "output directory")
	cmd.Flags().StringVar(&opts.Name, "name", defaults.BaseName, "file name prefix")
	cmd.Flags().IntVar(&opts.Substreams, "substreams", defaults.Substreams, "number of substream files")
	cmd.Flags().IntVar(&opts.Events, "events", defaults.Events, "total events across all files")
	cmd.Flags().Uint16Var(&opts.TelescopeID, "telescope", defaults.TelescopeID, "telescope id")
	cmd.Flags().UintSliceVar(&opts.Modules, "modules", uintSlice(defaults.ModuleIDs), "module ids in readout order")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "rng seed for reproducible output")
	cmd.Flags().DurationVar(&opts.Period, "period", defaults.Period, "nominal time between triggers")
	cmd.Flags().IntVar(&opts.LoseUCTSEvery, "lose-ucts-every", 0, "lose the UCTS sample of every n-th event (0 disables)")
	cmd.Flags().IntVar(&opts.OmitUCTSEvery, "omit-ucts-every", 0, "omit the UCTS block of every n-th event (0 disables)")

	return cmd
}

func runGenerate(cmd *cobra.Command, opts *GenerateOptions) error {
	modules, err := moduleIDs(opts.Modules)
	if err != nil {
		return err
	}

	cfg := gensub.Config{
		OutputDir:     opts.Dir,
		BaseName:      opts.Name,
		Substreams:    opts.Substreams,
		Events:        opts.Events,
		TelescopeID:   opts.TelescopeID,
		ModuleIDs:     modules,
		Seed:          opts.Seed,
		StartTime:     gensub.DefaultConfig(opts.Dir).StartTime,
		Period:        opts.Period,
		LoseUCTSEvery: opts.LoseUCTSEvery,
		OmitUCTSEvery: opts.OmitUCTSEvery,
	}

	g, err := gensub.New(cfg)
	if err != nil {
		return err
	}

	paths, err := g.Generate(cmd.Context())
	if err != nil {
		return err
	}

	for _, p := range paths {
		cmd.Println(p)
	}
	return nil
}

func uintSlice(ids []uint16) []uint {
	out := make([]uint, len(ids))
	for i, id := range ids {
		out[i] = uint(id)
	}
	return out
}

func moduleIDs(in []uint) ([]uint16, error) {
	out := make([]uint16, len(in))
	for i, id := range in {
		if id > 0xFFFF {
			return nil, fmt.Errorf("%w: module id %d out of range", gensub.ErrInvalidConfig, id)
		}
		out[i] = uint16(id)
	}
	return out, nil
}
