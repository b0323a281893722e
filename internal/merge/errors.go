package merge

import "errors"

// Sentinel kinds for merger errors.
var (
	// ErrEmptyInput rejects construction with no substreams at all.
	ErrEmptyInput = errors.New("substream collection must not be empty")

	// ErrConfigurationMissing rejects construction when no substream carries
	// a configuration record.
	ErrConfigurationMissing = errors.New("no configuration record found in any substream")

	// ErrExhausted signals end of the merged stream.
	ErrExhausted = errors.New("all substreams exhausted")

	// ErrMergerClosed rejects use after Close.
	ErrMergerClosed = errors.New("merger closed")
)
