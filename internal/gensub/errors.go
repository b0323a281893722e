package gensub

import "errors"

// ErrInvalidConfig marks generation parameters that cannot produce a valid
// run.
var ErrInvalidConfig = errors.New("invalid generator config")
