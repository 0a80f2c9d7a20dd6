// Package simerr defines the error taxonomy the core may raise: fatal
// configuration errors, pool exhaustion, and internal invariant
// violations. Nothing here is retried by the core.
package simerr

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigurationInvalid is returned when a required configuration
	// option is missing or ill-typed. Surfaced before any simulation
	// starts; always fatal.
	ErrConfigurationInvalid = errors.New("simerr: configuration invalid")

	// ErrPoolExhausted is returned when the thread scheduler cannot
	// allocate a core slot. Surfaced to the caller as a negative delay;
	// the caller is expected to abort.
	ErrPoolExhausted = errors.New("simerr: core pool exhausted")
)

// InvariantViolation models an internal assertion failure: a negative
// computed delay, an out-of-range set/way index, or an unexpected
// protocol state. Always fatal; never retried.
type InvariantViolation struct {
	Invariant string
	Detail    string
}

func (e *InvariantViolation) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("simerr: invariant violated: %s", e.Invariant)
	}
	return fmt.Sprintf("simerr: invariant violated: %s: %s", e.Invariant, e.Detail)
}

// NewInvariantViolation constructs an *InvariantViolation, formatting
// Detail with fmt.Sprintf(format, args...).
func NewInvariantViolation(invariant, format string, args ...any) *InvariantViolation {
	return &InvariantViolation{Invariant: invariant, Detail: fmt.Sprintf(format, args...)}
}

// NegativeDelay reports a miscomputation in protocol composition that
// would yield a negative response; per spec this is treated as an
// InvariantViolation rather than its own kind.
func NegativeDelay(component string, value int64) *InvariantViolation {
	return NewInvariantViolation("negative-delay", "%s computed a negative delay: %d", component, value)
}

// ConfigInvalid wraps ErrConfigurationInvalid with the offending field.
func ConfigInvalid(field, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrConfigurationInvalid, field, reason)
}
