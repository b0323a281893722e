package reconcile

import "errors"

// Sentinel kinds for reconciler errors. All of them are fatal for the
// telescope being processed; per-event clock loss is reported through the
// sentinel timestamp instead.
var (
	ErrModuleNotFound     = errors.New("dragon module id not present in configuration table")
	ErrMissingReference   = errors.New("no clock reference available and bootstrapping disabled")
	ErrInvalidClockSource = errors.New("unknown clock source")
)
