package coherence

import "sync/atomic"

// DRAM is the fixed-latency memory model: spec's Non-goals explicitly
// exclude DRAM controller scheduling, so every access costs the same
// constant delay.
type DRAM struct {
	accessTime int64
	accesses   atomic.Int64
}

// NewDRAM constructs a DRAM model with the given fixed access latency.
func NewDRAM(accessTime int64) *DRAM {
	return &DRAM{accessTime: accessTime}
}

// Access charges one DRAM access and returns its fixed latency.
func (d *DRAM) Access() int64 {
	d.accesses.Add(1)
	return d.accessTime
}

// Accesses returns the number of DRAM accesses charged so far.
func (d *DRAM) Accesses() int64 { return d.accesses.Load() }
