// Package service wires the pipeline together: substream readers feed the
// merger, merged events are routed to per-telescope reconcilers, and the
// reconciled records land in the output sink.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/telsync/internal/adapters/sink"
	"github.com/okian/telsync/internal/adapters/substream"
	"github.com/okian/telsync/internal/domain/model"
	"github.com/okian/telsync/internal/domain/types"
	"github.com/okian/telsync/internal/merge"
	"github.com/okian/telsync/internal/reconcile"
	"github.com/okian/telsync/pkg/logger"
)

// TelescopeReferences carries the pre-calibrated clock references for one
// telescope. A nil entry means that counter has no reference and the
// reconciler falls back to its first-event bootstrap.
type TelescopeReferences struct {
	Dragon *reconcile.ClockReference
	TIB    *reconcile.ClockReference
}

// Stats summarizes one pipeline run.
type Stats struct {
	EventsMerged       uint64
	EventsReconciled   uint64
	MissingUCTS        uint64
	Jumps              uint64
	PendingCorrections map[uint16]int
}

// Service runs the full ingestion pipeline over a fixed set of substream
// files. One Run consumes the inputs once; a Service is not reusable across
// runs.
type Service struct {
	inputs []string
	output string

	clockSource    reconcile.ClockSource
	dragonModuleID uint16
	useFirstEvent  bool
	jumpTolerance  time.Duration
	references     map[uint16]TelescopeReferences

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithInputs sets the substream file paths to merge.
func WithInputs(paths []string) Option {
	return func(s *Service) {
		s.inputs = paths
	}
}

// WithOutput sets the path of the JSONL output file.
func WithOutput(path string) Option {
	return func(s *Service) {
		s.output = path
	}
}

// WithClockSource selects the counter used for the final timestamp.
func WithClockSource(source reconcile.ClockSource) Option {
	return func(s *Service) {
		s.clockSource = source
	}
}

// WithDragonModuleID sets the camera module whose counters drive jump
// detection and the dragon timestamp.
func WithDragonModuleID(id uint16) Option {
	return func(s *Service) {
		s.dragonModuleID = id
	}
}

// WithUseFirstEvent controls whether missing clock references may be
// bootstrapped from the first event.
func WithUseFirstEvent(use bool) Option {
	return func(s *Service) {
		s.useFirstEvent = use
	}
}

// WithJumpTolerance sets the UCTS-versus-dragon discrepancy above which a
// jump is declared.
func WithJumpTolerance(tolerance time.Duration) Option {
	return func(s *Service) {
		if tolerance > 0 {
			s.jumpTolerance = tolerance
		}
	}
}

// WithReferences sets pre-calibrated clock references keyed by telescope ID.
func WithReferences(refs map[uint16]TelescopeReferences) Option {
	return func(s *Service) {
		s.references = refs
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a pipeline service. At least one input and an output path are
// required.
func New(opts ...Option) (*Service, error) {
	s := &Service{
		clockSource:    reconcile.ClockDragon,
		dragonModuleID: reconcile.DefaultDragonModuleID,
		useFirstEvent:  true,
		jumpTolerance:  reconcile.DefaultJumpTolerance,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("pipeline")
	}

	if len(s.inputs) == 0 {
		return nil, ErrNoInputs
	}
	if s.output == "" {
		return nil, ErrNoOutput
	}

	return s, nil
}

// Run merges the input substreams, reconciles every event's timestamp and
// writes one output record per event. It returns the run statistics together
// with the first error that stopped the pipeline, if any.
func (s *Service) Run(ctx context.Context) (*Stats, error) {
	runID := uuid.NewString()
	stats := &Stats{PendingCorrections: make(map[uint16]int)}

	sources := make([]merge.Source, 0, len(s.inputs))
	for _, path := range s.inputs {
		r, err := substream.Open(path)
		if err != nil {
			for _, src := range sources {
				_ = src.Close()
			}
			return stats, fmt.Errorf("open substream %q: %w", path, err)
		}
		sources = append(sources, r)
	}

	merger, err := merge.New(ctx, sources...)
	if err != nil {
		return stats, fmt.Errorf("build merger: %w", err)
	}
	defer func() {
		_ = merger.Close()
	}()

	out, err := sink.NewJSONL(s.output)
	if err != nil {
		return stats, fmt.Errorf("open output: %w", err)
	}
	defer func() {
		_ = out.Close()
	}()

	s.logger.Info(ctx, "pipeline run starting",
		logger.String("run_id", runID),
		logger.Int("inputs", merger.NumInputs()),
		logger.Uint64("total_events", merger.Len()),
		logger.String("clock_source", s.clockSource.String()),
	)

	reconcilers := make(map[uint16]*reconcile.Reconciler)
	for {
		ev, err := merger.Next(ctx)
		if errors.Is(err, merge.ErrExhausted) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("merge: %w", err)
		}
		stats.EventsMerged++

		rec, ok := reconcilers[ev.TelescopeID]
		if !ok {
			rec, err = s.newReconciler(ev.TelescopeID, merger.Config())
			if err != nil {
				return stats, fmt.Errorf("telescope %d: %w", ev.TelescopeID, err)
			}
			reconcilers[ev.TelescopeID] = rec
		}

		ts, err := rec.Reconcile(ctx, ev)
		if err != nil {
			return stats, fmt.Errorf("reconcile event %d: %w", ev.EventID, err)
		}

		record := types.ReconciledEvent{
			EventID:     ev.EventID,
			TelescopeID: ev.TelescopeID,
			TriggerType: triggerOf(ev),
			Jump:        ev.UCTSJump,
		}
		if ts.Valid() {
			record.TimestampNS = ts.Nanos()
			record.Valid = true
			stats.EventsReconciled++
		} else {
			stats.MissingUCTS++
		}
		if ev.UCTSJump {
			stats.Jumps++
		}

		if err := out.Write(ctx, record); err != nil {
			return stats, fmt.Errorf("write event %d: %w", ev.EventID, err)
		}
	}

	for id, rec := range reconcilers {
		if depth := rec.PendingCorrections(); depth > 0 {
			stats.PendingCorrections[id] = depth
			s.logger.Warn(ctx, "run ended with unresolved ucts corrections",
				logger.Int("telescope", int(id)),
				logger.Int("pending", depth),
			)
		}
	}

	if err := out.Close(); err != nil {
		return stats, fmt.Errorf("close output: %w", err)
	}

	s.logger.Info(ctx, "pipeline run finished",
		logger.String("run_id", runID),
		logger.Uint64("events_merged", stats.EventsMerged),
		logger.Uint64("events_reconciled", stats.EventsReconciled),
		logger.Uint64("missing_ucts", stats.MissingUCTS),
		logger.Uint64("ucts_jumps", stats.Jumps),
	)

	return stats, nil
}

// newReconciler builds the reconciler for one telescope, reusing the merged
// stream's module layout and any pre-calibrated references for that
// telescope.
func (s *Service) newReconciler(telescopeID uint16, cfg *model.CameraConfig) (*reconcile.Reconciler, error) {
	telCfg := &model.CameraConfig{
		TelescopeID: telescopeID,
		LocalRunID:  cfg.LocalRunID,
		ModuleIDs:   cfg.ModuleIDs,
	}

	opts := []reconcile.Option{
		reconcile.WithClockSource(s.clockSource),
		reconcile.WithDragonModuleID(s.dragonModuleID),
		reconcile.WithUseFirstEvent(s.useFirstEvent),
		reconcile.WithJumpTolerance(s.jumpTolerance),
		reconcile.WithLogger(s.logger),
	}
	if refs, ok := s.references[telescopeID]; ok {
		if refs.Dragon != nil {
			opts = append(opts, reconcile.WithDragonReference(*refs.Dragon))
		}
		if refs.TIB != nil {
			opts = append(opts, reconcile.WithTIBReference(*refs.TIB))
		}
	}

	return reconcile.New(telCfg, opts...)
}

// triggerOf picks the event's trigger type after reconciliation: the (possibly
// corrected) UCTS trigger when present, the trigger board's mask otherwise.
func triggerOf(ev *model.Event) uint8 {
	switch {
	case ev.UCTSAvailable():
		return ev.UCTS.TriggerType
	case ev.TIBAvailable():
		return ev.TIB.MaskedTrigger
	default:
		return reconcile.TriggerTypeUnknown
	}
}
