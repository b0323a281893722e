package reconcile

import (
	"time"

	"github.com/okian/telsync/pkg/logger"
)

// Option applies a configuration option to the Reconciler.
type Option func(*Reconciler)

// WithClockSource selects which reconstructed time Reconcile reports.
func WithClockSource(source ClockSource) Option {
	return func(r *Reconciler) {
		r.source = source
	}
}

// WithDragonReference supplies a known-good UCTS/Dragon counter pairing,
// skipping first-event bootstrapping for the Dragon clock.
func WithDragonReference(ref ClockReference) Option {
	return func(r *Reconciler) {
		r.dragonRef = ref
		r.hasDragonRef = true
	}
}

// WithTIBReference supplies a known-good UCTS/TIB counter pairing.
func WithTIBReference(ref ClockReference) Option {
	return func(r *Reconciler) {
		r.tibRef = ref
		r.hasTIBRef = true
	}
}

// WithDragonModuleID selects the counter board used for Dragon time.
func WithDragonModuleID(id uint16) Option {
	return func(r *Reconciler) {
		r.moduleID = id
	}
}

// WithUseFirstEvent controls whether the first usable event may serve as the
// calibration anchor when no reference was supplied.
func WithUseFirstEvent(use bool) Option {
	return func(r *Reconciler) {
		r.useFirstEvent = use
	}
}

// WithJumpTolerance sets the UCTS/Dragon discrepancy above which a jump is
// declared.
func WithJumpTolerance(tolerance time.Duration) Option {
	return func(r *Reconciler) {
		if tolerance > 0 {
			r.toleranceNanos = tolerance.Nanoseconds()
		}
	}
}

// WithLogger sets a custom logger for the reconciler.
func WithLogger(l logger.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}
