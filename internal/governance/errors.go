package governance

import "errors"

// ErrInvalidThreshold rejects a non-positive variance threshold before any
// record is scanned.
var ErrInvalidThreshold = errors.New("governance: variance threshold must be positive")
