// Package reconcile computes per-event timestamps from redundant, partially
// unreliable hardware counters.
//
// Three clock sources exist per telescope: the externally synchronized
// absolute clock (UCTS), the per-module Dragon counters and the trigger-board
// (TIB) counters. UCTS samples occasionally go missing; the sample read with
// an event record then belongs to a later event until the shift is detected
// again ("jump"). The reconciler tracks those shifts with a correction queue
// and realigns every event with its true sample.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/telsync/internal/domain/counters"
	"github.com/okian/telsync/internal/domain/model"
	"github.com/okian/telsync/internal/domain/timescale"
	"github.com/okian/telsync/pkg/logger"
	"github.com/okian/telsync/pkg/metrics"
)

// DefaultDragonModuleID is the central camera module, whose counters drift
// least with trigger load.
const DefaultDragonModuleID uint16 = 132

// DefaultJumpTolerance is the UCTS-ahead-of-Dragon discrepancy above which
// the UCTS sample is deemed to belong to a later event.
const DefaultJumpTolerance = time.Microsecond

// TriggerTypeUnknown marks events that lost their trigger information to a
// jump with no trigger board present. It overlaps a legitimate trigger code;
// consumers that need to distinguish the two must consult the jump flag.
const TriggerTypeUnknown uint8 = 0

// ClockReference fixes the linear mapping from a free-running counter to
// absolute time: physical_time = UCTSTimestamp - Counter0 + counter.
type ClockReference struct {
	UCTSTimestamp uint64 // absolute time, ns TAI
	Counter0      int64  // counter value at that time, ns
}

// Reconciler assigns a best-estimate timestamp to every event of one
// telescope. It must see events in merged order and is not safe for
// concurrent use; embed one instance per telescope per worker.
type Reconciler struct {
	telescopeID uint16
	moduleID    uint16
	moduleIndex int

	source         ClockSource
	useFirstEvent  bool
	toleranceNanos int64

	// Calibration state. The unset -> set transition happens at most once
	// per clock source, either here at construction or on the first event.
	hasDragonRef bool
	hasTIBRef    bool
	dragonRef    ClockReference
	tibRef       ClockReference

	pending sampleQueue
	logger  logger.Logger
}

// New creates a reconciler for the telescope described by cfg.
func New(cfg *model.CameraConfig, opts ...Option) (*Reconciler, error) {
	r := &Reconciler{
		telescopeID:    cfg.TelescopeID,
		moduleID:       DefaultDragonModuleID,
		source:         ClockDragon,
		useFirstEvent:  true,
		toleranceNanos: DefaultJumpTolerance.Nanoseconds(),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.logger == nil {
		r.logger = logger.Get().Named("reconcile")
	}

	switch r.source {
	case ClockUCTS, ClockDragon, ClockTIB:
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidClockSource, r.source)
	}

	idx, ok := cfg.ModuleIndex(r.moduleID)
	if !ok {
		return nil, fmt.Errorf("%w: module %d, telescope %d", ErrModuleNotFound, r.moduleID, r.telescopeID)
	}
	r.moduleIndex = idx

	missingSelected := (r.source == ClockDragon && !r.hasDragonRef) ||
		(r.source == ClockTIB && !r.hasTIBRef)
	if missingSelected {
		if !r.useFirstEvent {
			return nil, fmt.Errorf("%w: telescope %d, source %s", ErrMissingReference, r.telescopeID, r.source)
		}
		r.logger.Warn(context.Background(),
			"using first event as time reference for counters, this will lead to wrong timestamps and trigger types for all but the first subrun",
			logger.Int("telescope", int(r.telescopeID)),
			logger.String("source", r.source.String()),
		)
	}

	return r, nil
}

// TelescopeID returns the telescope this reconciler serves.
func (r *Reconciler) TelescopeID() uint16 {
	return r.telescopeID
}

// PendingCorrections returns the correction-queue depth, one entry per
// unresolved jump since stream start.
func (r *Reconciler) PendingCorrections() int {
	return r.pending.Len()
}

// Reconcile computes the event's timestamp from the configured clock source,
// correcting mis-associated UCTS samples along the way. The event's UCTS
// timestamp and trigger-type fields are overwritten when a correction or a
// jump applies. Called once per event in merged order.
func (r *Reconciler) Reconcile(ctx context.Context, ev *model.Event) (timescale.Timestamp, error) {
	start := time.Now()
	defer func() {
		metrics.RecordReconcileLatency(time.Since(start).Seconds())
	}()

	if r.moduleIndex >= len(ev.Modules) {
		return timescale.NoTimestamp, fmt.Errorf("%w: event %d has %d modules, need index %d",
			ErrModuleNotFound, ev.EventID, len(ev.Modules), r.moduleIndex)
	}

	if !ev.UCTSAvailable() {
		r.logger.Warn(ctx, "cannot calculate timestamp, ucts unavailable",
			logger.Uint64("event_id", ev.EventID),
			logger.Int("telescope", int(r.telescopeID)),
		)
		metrics.RecordMissingUCTS(r.telescopeID)
		return timescale.NoTimestamp, nil
	}

	mod := ev.Modules[r.moduleIndex]
	uctsTimestamp := ev.UCTS.Timestamp
	uctsTriggerType := ev.UCTS.TriggerType
	uctsNanos := int64(uctsTimestamp)

	var dragonNanos, tibNanos int64
	dragonValid, tibValid := false, false

	if !r.hasDragonRef && !r.hasTIBRef {
		// First usable event becomes the calibration anchor. Every timestamp
		// of this run now depends on this pairing being correct.
		counter0 := counters.DragonOffsetNanos(mod.PPSCounter, mod.TenMHzCounter)
		r.dragonRef = ClockReference{UCTSTimestamp: uctsTimestamp, Counter0: counter0}
		r.hasDragonRef = true
		r.logger.Error(ctx, "critical: using first event as time reference for dragon",
			logger.Uint64("ucts_timestamp", uctsTimestamp),
			logger.Int64("dragon_counter", counter0),
			logger.Int("telescope", int(r.telescopeID)),
		)
		dragonNanos = uctsNanos
		dragonValid = true

		if !ev.TIBAvailable() && r.source == ClockTIB {
			return timescale.NoTimestamp, fmt.Errorf(
				"%w: tib selected for timestamp but anchor event has no tib info", ErrMissingReference)
		}

		if ev.TIBAvailable() {
			tibCounter0 := counters.TIBOffsetNanos(ev.TIB.PPSCounter, ev.TIB.TenMHzCounter)
			r.tibRef = ClockReference{UCTSTimestamp: uctsTimestamp, Counter0: tibCounter0}
			r.hasTIBRef = true
			r.logger.Error(ctx, "critical: using first event as time reference for tib",
				logger.Uint64("ucts_timestamp", uctsTimestamp),
				logger.Int64("tib_counter", tibCounter0),
				logger.Int("telescope", int(r.telescopeID)),
			)
			tibNanos = uctsNanos
			tibValid = true
		}
	} else {
		if r.hasDragonRef {
			ref := int64(r.dragonRef.UCTSTimestamp) - r.dragonRef.Counter0
			dragonNanos = ref + counters.DragonOffsetNanos(mod.PPSCounter, mod.TenMHzCounter)
			dragonValid = true
		}
		if r.hasTIBRef && ev.TIBAvailable() {
			ref := int64(r.tibRef.UCTSTimestamp) - r.tibRef.Counter0
			tibNanos = ref + counters.TIBOffsetNanos(ev.TIB.PPSCounter, ev.TIB.TenMHzCounter)
			tibValid = true
		}
	}

	// While corrections are pending every event's true sample sits at the
	// queue head: the sample just read belongs further out, so it joins the
	// tail and the head realigns this event.
	if r.pending.Len() > 0 {
		r.pending.PushBack(uctsSample{timestamp: uctsTimestamp, triggerType: uctsTriggerType})
		s := r.pending.PopFront()
		uctsTimestamp = s.timestamp
		uctsTriggerType = s.triggerType
		uctsNanos = int64(uctsTimestamp)
		ev.UCTS.Timestamp = uctsTimestamp
		ev.UCTS.TriggerType = uctsTriggerType
	}

	// UCTS ahead of Dragon beyond tolerance means the sample belongs to a
	// later event: put it back at the head for the next event and leave this
	// event with the Dragon-derived time, which is approximately correct.
	if dragonValid && uctsNanos-dragonNanos > r.toleranceNanos {
		deltaMicros := float64(uctsNanos-dragonNanos) / 1e3
		r.logger.Warn(ctx, "found ucts jump",
			logger.Uint64("event_id", ev.EventID),
			logger.String("dragon_time", timescale.Timestamp(dragonNanos).String()),
			logger.Float64("delta_us", deltaMicros),
		)
		r.pending.PushFront(uctsSample{timestamp: uctsTimestamp, triggerType: uctsTriggerType})

		uctsNanos = dragonNanos
		ev.UCTS.Timestamp = uint64(dragonNanos)
		ev.UCTSJump = true

		if ev.TIBAvailable() {
			ev.UCTS.TriggerType = ev.TIB.MaskedTrigger
		} else {
			r.logger.Warn(ctx, "detected ucts jump but no tib trigger info available, event will have no trigger information",
				logger.Uint64("event_id", ev.EventID),
			)
			ev.UCTS.TriggerType = TriggerTypeUnknown
		}
		metrics.RecordUCTSJump(r.telescopeID)
	}
	metrics.UpdateCorrectionQueueDepth(r.telescopeID, r.pending.Len())

	var ts timescale.Timestamp
	switch r.source {
	case ClockUCTS:
		ts = timescale.Timestamp(uctsNanos)
	case ClockDragon:
		ts = timescale.NoTimestamp
		if dragonValid {
			ts = timescale.Timestamp(dragonNanos)
		}
	case ClockTIB:
		ts = timescale.NoTimestamp
		if tibValid {
			ts = timescale.Timestamp(tibNanos)
		}
	default:
		return timescale.NoTimestamp, fmt.Errorf("%w: %v", ErrInvalidClockSource, r.source)
	}

	r.logger.Debug(ctx, "reconciled event time",
		logger.Uint64("event_id", ev.EventID),
		logger.String("ucts", timescale.Timestamp(uctsNanos).String()),
		logger.String("dragon", timescale.Timestamp(dragonNanos).String()),
		logger.String("tib", timescale.Timestamp(tibNanos).String()),
	)
	metrics.RecordEventReconciled(r.telescopeID)
	return ts, nil
}
