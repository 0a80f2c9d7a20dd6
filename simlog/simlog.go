// Package simlog is the logging façade shared by the core's components.
// It binds the teacher's own logging abstraction, logiface, to a
// zerolog backend, the same pairing exercised in logiface/zerolog.
// Components hold a *logiface.Logger[logiface.Event] field rather than
// depending on zerolog directly, so the backend can be swapped without
// touching coherence/directory/corepool.
package simlog

import (
	"io"

	"github.com/joeycumines/logiface"
	zlog "github.com/joeycumines/logiface/zerolog"
	"github.com/rs/zerolog"
)

// New constructs a logiface.Logger backed by zerolog, writing to w at the
// given minimum level. Passing io.Discard disables logging entirely
// (matching LevelDisabled semantics in hot-path benchmarks).
func New(w io.Writer, level logiface.Level) *logiface.Logger[logiface.Event] {
	zl := zerolog.New(w).With().Timestamp().Logger()
	return zlog.L.New(
		zlog.L.WithZerolog(zl),
		logiface.WithLevel[*zlog.Event](level),
	).Logger()
}

// Nop returns a logger with logging disabled, for components constructed
// without an explicit logger (e.g. in unit tests).
func Nop() *logiface.Logger[logiface.Event] {
	return New(io.Discard, logiface.LevelDisabled)
}
