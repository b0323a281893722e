package substream

import "errors"

// Sentinel kinds for substream container errors.
var (
	ErrBadMagic           = errors.New("not a substream file")
	ErrUnsupportedVersion = errors.New("unsupported substream version")
	ErrTruncated          = errors.New("truncated substream record")
	ErrModuleCountMismatch = errors.New("event module count does not match header")
	ErrClosed             = errors.New("substream closed")
)
