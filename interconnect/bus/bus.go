// Package bus models the shared snoop bus used by the bus-MESI
// protocol: every sibling access to the bus at a given level is priced
// through one contended channel, per spec component C2.
package bus

import (
	"sync/atomic"

	"github.com/joeycumines/prime-uncore/interconnect/link"
	"github.com/joeycumines/prime-uncore/queuemodel"
)

// Bus is a shared channel all banks at one level contend on.
type Bus struct {
	channel    *link.Link
	latency    int64
	contention atomic.Int64
}

// New constructs a Bus with the given fixed latency and the default
// history queue model.
func New(latency int64) *Bus {
	return &Bus{
		channel: link.New(latency, queuemodel.NewHistoryModel(0)),
		latency: latency,
	}
}

// Access charges the bus for a single access arriving at cycle t, and
// returns the resulting delay (propagation + contention). The portion
// beyond the fixed latency accumulates into TotalContention, for the
// report's total_bus_contention line.
func (b *Bus) Access(t int64) int64 {
	d := b.channel.Traverse(t, b.latency)
	if extra := d - b.latency; extra > 0 {
		b.contention.Add(extra)
	}
	return d
}

// TotalContention returns the accumulated queueing delay beyond the
// bus's fixed latency, across every Access call.
func (b *Bus) TotalContention() int64 { return b.contention.Load() }
