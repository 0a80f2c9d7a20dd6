// Package link models a single shared physical channel (a bus or a
// network link): fixed propagation delay plus queue-model contention,
// serialising concurrent callers behind its own mutex.
package link

import (
	"sync"

	"github.com/joeycumines/prime-uncore/queuemodel"
)

// Link is a contended channel. Delay is the fixed propagation delay;
// Model prices contention on top of it. Each Link owns its mutex, per
// the concurrency model's "each bus and each link has its own mutex
// around its queue model".
type Link struct {
	mu    sync.Mutex
	delay int64
	model queuemodel.Model
}

// New constructs a Link with a fixed propagation delay and a queue
// model. A nil model disables contention pricing (delay is purely
// propagation).
func New(delay int64, model queuemodel.Model) *Link {
	return &Link{delay: delay, model: model}
}

// Traverse charges the link for a transfer of serviceCycles duration,
// arriving at cycle t, and returns the total delay: the fixed
// propagation delay plus any queue delay induced by contention.
func (l *Link) Traverse(t, serviceCycles int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	var queueDelay int64
	if l.model != nil {
		queueDelay = l.model.ComputeQueueDelay(t, serviceCycles)
	}
	return l.delay + queueDelay
}

// PropagationDelay returns the link's fixed delay, ignoring contention.
func (l *Link) PropagationDelay() int64 {
	return l.delay
}
