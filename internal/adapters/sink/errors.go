package sink

import "errors"

// Sentinel kinds for sink errors.
var (
	ErrSinkClosed = errors.New("sink closed")
)
