package segsieve

import (
	"fmt"
)

// ConfigError indicates an invalid sieve configuration.
//
// The engine never recovers from configuration problems; they are surfaced
// to the caller before the first window starts.
type ConfigError struct {
	Field  string
	Value  uint64
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s = %d: %s", e.Field, e.Value, e.Reason)
}

// RangeError indicates that computing the next composite multiple would
// overflow uint64. Wrapped values would corrupt the store invariant, so the
// engine detects the overflow before multiplying and aborts instead.
type RangeError struct {
	// Prime is the prime whose multiple could not be computed.
	Prime uint64

	// Multiple is the last valid multiple before the overflow.
	Multiple uint64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("multiple of prime %d beyond %d overflows uint64", e.Prime, e.Multiple)
}
