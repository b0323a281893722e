package service

import "errors"

var (
	// ErrNoInputs is returned when the service is built without any
	// substream files to merge.
	ErrNoInputs = errors.New("no input substreams configured")

	// ErrNoOutput is returned when the service is built without an output
	// path.
	ErrNoOutput = errors.New("no output path configured")
)
