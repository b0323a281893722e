package counters

import "errors"

// Sentinel kinds for counter decoding errors.
var (
	ErrShortBlock = errors.New("counter block too short")
)
