package cli

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	app "github.com/okian/telsync/internal/app"
	"github.com/okian/telsync/internal/config"
	"github.com/okian/telsync/internal/reconcile"
	"github.com/okian/telsync/pkg/logger"
	"github.com/okian/telsync/pkg/metrics"
)

// Metrics server timeouts.
const (
	metricsReadTimeout       = 10 * time.Second
	metricsReadHeaderTimeout = 5 * time.Second
)

// RunOptions holds flags for the run command. Flags override the loaded
// configuration only when set on the command line.
type RunOptions struct {
	*RootOptions
	Inputs      []string
	Output      string
	ClockSource string
	MetricsAddr string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Merge substreams and reconcile event timestamps",
		Long: `Merge the input substream files into one stream ordered by event id,
compute a best-estimate timestamp for every event and write the result
as JSON lines.

Configuration is layered: defaults, then the YAML file named by
TELSYNC_CONFIG, then TELSYNC_* environment variables, then flags.

Example:
  telsync run -i run01.chain0.tlsb -i run01.chain1.tlsb -o run01.jsonl
  telsync run --clock-source ucts --metrics-addr :9090`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Inputs, "input", "i", nil, "substream file (repeatable)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output JSONL file")
	cmd.Flags().StringVar(&opts.ClockSource, "clock-source", "", "timestamp source (ucts|dragon|tib)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "Prometheus listen address, empty disables")

	return cmd
}

func runPipeline(cmd *cobra.Command, opts *RunOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadRunConfig(ctx, cmd, opts)
	if err != nil {
		return err
	}

	log := logger.Get().Named("cli")
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	if opts.Verbose {
		_ = logger.SetLevelString("debug")
	}

	source, err := reconcile.ParseClockSource(cfg.ClockSource)
	if err != nil {
		return err
	}

	references, err := buildReferences(cfg.References)
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		startMetricsServer(ctx, cfg.MetricsAddr, log)
	}

	svc, err := app.New(
		app.WithInputs(cfg.Inputs),
		app.WithOutput(cfg.Output),
		app.WithClockSource(source),
		app.WithDragonModuleID(cfg.DragonModuleID),
		app.WithUseFirstEvent(cfg.UseFirstEvent),
		app.WithJumpTolerance(time.Duration(cfg.JumpToleranceNS)*time.Nanosecond),
		app.WithReferences(references),
		app.WithLogger(logger.Get().Named("pipeline")),
	)
	if err != nil {
		return err
	}

	stats, err := svc.Run(ctx)
	if err != nil {
		return err
	}

	cmd.Printf("merged %d events: %d reconciled, %d without absolute clock, %d jumps corrected\n",
		stats.EventsMerged, stats.EventsReconciled, stats.MissingUCTS, stats.Jumps)
	for id, depth := range stats.PendingCorrections {
		cmd.Printf("telescope %d ended with %d unresolved corrections\n", id, depth)
	}
	return nil
}

// loadRunConfig layers the environment-driven configuration with the flags
// that were explicitly set.
func loadRunConfig(ctx context.Context, cmd *cobra.Command, opts *RunOptions) (*config.Config, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("input") {
		cfg.Inputs = opts.Inputs
	}
	if cmd.Flags().Changed("output") {
		cfg.Output = opts.Output
	}
	if cmd.Flags().Changed("clock-source") {
		cfg.ClockSource = opts.ClockSource
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.MetricsAddr = opts.MetricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.Inputs, err = expandInputs(cfg.Inputs)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandInputs resolves glob patterns in the input list. A pattern matching
// nothing is kept literally so the open fails with the actual path in hand.
func expandInputs(inputs []string) ([]string, error) {
	out := make([]string, 0, len(inputs))
	for _, in := range inputs {
		matches, err := filepath.Glob(in)
		if err != nil {
			return nil, fmt.Errorf("%w: input pattern %q", config.ErrInvalidConfig, in)
		}
		if len(matches) == 0 {
			out = append(out, in)
			continue
		}
		out = append(out, matches...)
	}
	return out, nil
}

// buildReferences converts the serialized per-telescope references into the
// service's form, parsing the decimal telescope ids.
func buildReferences(in map[string]config.TelescopeReference) (map[uint16]app.TelescopeReferences, error) {
	if len(in) == 0 {
		return nil, nil
	}

	out := make(map[uint16]app.TelescopeReferences, len(in))
	for key, ref := range in {
		id, err := strconv.ParseUint(key, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("%w: telescope id %q", config.ErrInvalidConfig, key)
		}
		var refs app.TelescopeReferences
		if ref.Dragon != nil {
			refs.Dragon = &reconcile.ClockReference{
				UCTSTimestamp: ref.Dragon.UCTSTimestamp,
				Counter0:      ref.Dragon.Counter0,
			}
		}
		if ref.TIB != nil {
			refs.TIB = &reconcile.ClockReference{
				UCTSTimestamp: ref.TIB.UCTSTimestamp,
				Counter0:      ref.TIB.Counter0,
			}
		}
		out[uint16(id)] = refs
	}
	return out, nil
}

// startMetricsServer exposes the Prometheus registry for the duration of the
// run. The server dies with the process; runs are batch-shaped, so a failed
// listener is logged instead of aborting the pipeline.
func startMetricsServer(ctx context.Context, addr string, log logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       metricsReadTimeout,
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "metrics endpoint listening", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(ctx, "metrics endpoint failed", logger.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
}
