// Package queuemodel estimates the queueing delay of a contended
// resource (a bus or a link) under a fluid/M-G-1-ish analytical model.
// It never fails and never retries; the only side effect of a call is
// updating the model's internal history.
package queuemodel

import "sync"

// Model estimates the additional waiting time a request sees given
// prior traffic on the same resource. Implementations must be safe for
// concurrent use: ComputeQueueDelay is called under the resource's own
// lock, but the model itself also serialises internally so it can be
// shared (e.g. in tests) without an external lock.
//
// ComputeQueueDelay is monotone in the sequence of calls under a single
// lock: for a fixed model, replaying the same sequence of (t, d) pairs
// always yields the same sequence of delays.
type Model interface {
	// ComputeQueueDelay returns the additional delay a request arriving
	// at cycle t, requiring d cycles of service, must wait for due to
	// contention recorded in the model's history.
	ComputeQueueDelay(t, d int64) int64
}

// interval is a previously reserved busy period, [start, end).
type interval struct {
	start, end int64
}

// HistoryModel is the default queue model: it keeps a history of prior
// (arrival, service) pairs, sorted by start time, and uses it to
// compute the earliest free slot for a new request. Unlike BusyUntilModel
// it tolerates out-of-order arrival times, which matters because
// multiple concurrent callers may present t values that are not
// monotonically increasing by the time they reach the lock.
//
// History entries older than pruneWindow relative to the latest
// request are discarded, bounding memory growth without affecting the
// delay computed for any request within the window.
type HistoryModel struct {
	mu          sync.Mutex
	history     []interval // sorted by start
	pruneWindow int64
	latest      int64
}

const defaultPruneWindow = 1 << 20

// NewHistoryModel constructs the default queue model. pruneWindow bounds
// how far back history is retained, in cycles; 0 selects a sensible
// default.
func NewHistoryModel(pruneWindow int64) *HistoryModel {
	if pruneWindow <= 0 {
		pruneWindow = defaultPruneWindow
	}
	return &HistoryModel{pruneWindow: pruneWindow}
}

func (m *HistoryModel) ComputeQueueDelay(t, d int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t > m.latest {
		m.latest = t
	}
	m.prune()

	idx := m.searchFrom(t)
	cursor := t
	for i := idx; i < len(m.history) && m.history[i].start <= cursor; i++ {
		if m.history[i].end > cursor {
			cursor = m.history[i].end
		}
	}

	delay := cursor - t
	m.insert(interval{start: cursor, end: cursor + d})
	return delay
}

// searchFrom returns the index of the first interval whose end could
// possibly overlap t, i.e. the first interval starting at or before t,
// scanning back one position from a binary search for safety against
// overlapping-but-earlier-starting intervals.
func (m *HistoryModel) searchFrom(t int64) int {
	lo, hi := 0, len(m.history)
	for lo < hi {
		mid := (lo + hi) / 2
		if m.history[mid].start <= t {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	// lo is the first interval with start > t; walk back while the
	// previous interval might still end after t.
	for lo > 0 && m.history[lo-1].end > t {
		lo--
	}
	return lo
}

func (m *HistoryModel) insert(iv interval) {
	lo, hi := 0, len(m.history)
	for lo < hi {
		mid := (lo + hi) / 2
		if m.history[mid].start <= iv.start {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	m.history = append(m.history, interval{})
	copy(m.history[lo+1:], m.history[lo:])
	m.history[lo] = iv
}

func (m *HistoryModel) prune() {
	cutoff := m.latest - m.pruneWindow
	i := 0
	for i < len(m.history) && m.history[i].end < cutoff {
		i++
	}
	if i > 0 {
		m.history = append(m.history[:0], m.history[i:]...)
	}
}

// BusyUntilModel is the simpler variant: it tracks only the last
// busy-until timestamp, assuming roughly monotonically increasing
// arrival times.
type BusyUntilModel struct {
	mu         sync.Mutex
	busyUntil  int64
}

func NewBusyUntilModel() *BusyUntilModel {
	return &BusyUntilModel{}
}

func (m *BusyUntilModel) ComputeQueueDelay(t, d int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := t
	if m.busyUntil > start {
		start = m.busyUntil
	}
	delay := start - t
	m.busyUntil = start + d
	return delay
}
