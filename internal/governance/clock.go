package governance

import "time"

// Clock supplies the audit timestamps stamped onto flags and summaries,
// keeping flag generation deterministic under test.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
