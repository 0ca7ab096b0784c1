package fiscal

import "errors"

// ErrInvalidPrice rejects a non-positive settlement price before any
// exposure is computed.
var ErrInvalidPrice = errors.New("fiscal: settlement price must be positive")
