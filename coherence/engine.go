package coherence

import (
	"sync"

	"github.com/joeycumines/prime-uncore/directory"
	"github.com/joeycumines/prime-uncore/membank"
	"github.com/joeycumines/prime-uncore/simerr"
	"github.com/joeycumines/prime-uncore/trace"
)

// Engine runs the configured protocol state machine over a Hierarchy.
type Engine struct {
	h    *Hierarchy
	dram *DRAM
}

// NewEngine constructs an Engine over h, billing DRAM fills through dram.
func NewEngine(h *Hierarchy, dram *DRAM) *Engine {
	return &Engine{h: h, dram: dram}
}

// Hierarchy exposes the underlying bank tree, for report output.
func (e *Engine) Hierarchy() *Hierarchy { return e.h }

// DRAM exposes the DRAM model, for report output.
func (e *Engine) DRAM() *DRAM { return e.dram }

// Access runs the reference starting at the L1 bank for slot (one bank
// per core, level 0), returning the accumulated delay.
func (e *Engine) Access(slot, process int, addr uint64, kind trace.Kind, t int64) (int64, error) {
	if kind == trace.Writeback {
		kind = trace.Write
	}
	_, delay, err := e.walk(0, slot, process, addr, kind, t)
	if delay < 0 {
		return 0, simerr.NegativeDelay("coherence.access", delay)
	}
	return delay, err
}

// walk runs one level's worth of the protocol and recurses toward the
// root on a miss (or on a hit-write below the top that must acquire
// exclusive ownership from the parent). It returns the resulting line
// state (so the caller at level-1 knows what to set its own line to),
// the delay charged at this level and everything above it, and any
// structural error.
func (e *Engine) walk(level, bankIdx, process int, addr uint64, kind trace.Kind, t int64) (membank.LineState, int64, error) {
	bank, err := e.h.BankFor(level, bankIdx)
	if err != nil {
		return membank.I, 0, err
	}

	var delay int64
	if e.h.sysType == Bus && level > 0 {
		delay += e.h.BusFor(level).Access(t)
	}

	tag, idx, _ := bank.Decompose(addr)
	bank.LockUp(idx)
	delay += bank.Geometry().AccessTime
	top := level == e.h.TopLevel()

	line, hit := bank.Access(process, tag, idx)
	bank.Accesses.Add(1)

	if hit {
		state, d, err := e.dispatchHit(level, bankIdx, bank, line, idx, process, addr, kind, t+delay, top)
		bank.UnlockUp(idx)
		return state, delay + d, err
	}

	bank.Misses.Add(1)
	state, d, err := e.dispatchMiss(level, bankIdx, bank, idx, tag, process, addr, kind, t+delay, top)
	bank.UnlockUp(idx)
	return state, delay + d, err
}

func (e *Engine) dispatchHit(level, bankIdx int, bank *membank.Bank, line *membank.Line, idx, process int, addr uint64, kind trace.Kind, t int64, top bool) (membank.LineState, int64, error) {
	var delay int64

	switch kind {
	case trace.Write:
		if top {
			if e.h.sysType == Bus {
				if line.State == membank.S {
					delay += e.invalSiblingsWithLine(bankIdx, process, addr, t)
				}
			} else {
				_, d, err := e.directoryRoundTrip(bankIdx, process, addr, trace.Write, t)
				if err != nil {
					return membank.I, delay, err
				}
				delay += d
			}
			line.State = membank.M
			delay += e.invalChildren(level, bankIdx, process, addr, t+delay)
		} else if line.State != membank.M {
			line.State = membank.I
			parentState, d, err := e.walk(level+1, e.h.ParentIndex(level, bankIdx), process, addr, trace.Write, t)
			if err != nil {
				return membank.I, delay + d, err
			}
			delay += d
			line.State = parentState
			delay += e.invalChildren(level, bankIdx, process, addr, t+delay)
		}

	case trace.Read:
		if line.State == membank.V {
			// The shared LLC already holds the data; a fresh reader
			// becomes the sole owner without a DRAM access or any
			// child fan-out, since no private copy was live.
			line.State = membank.E
		} else if line.State == membank.M || line.State == membank.E {
			delay += e.shareChildren(level, bankIdx, process, addr, t)
			line.State = membank.S
		}
	}

	bank.Touch(idx, line.Way)
	return line.State, delay, nil
}

func (e *Engine) dispatchMiss(level, bankIdx int, bank *membank.Bank, idx int, tag uint64, process int, addr uint64, kind trace.Kind, t int64, top bool) (membank.LineState, int64, error) {
	var delay int64

	victim, evicted, evictedProcess, evictedAddr := bank.Replace(process, tag, idx)
	if evicted {
		if victim.State == membank.M {
			bank.Writebacks.Add(1)
		}
		bank.Evictions.Add(1)
		delay += e.invalChildren(level, bankIdx, evictedProcess, evictedAddr, t)
		if top && e.h.sysType == DirectoryProtocol {
			delay += e.directoryWriteback(bankIdx, evictedProcess, evictedAddr, t)
		}
	}

	if !top {
		state, d, err := e.walk(level+1, e.h.ParentIndex(level, bankIdx), process, addr, kind, t+delay)
		delay += d
		if err != nil {
			return membank.I, delay, err
		}
		victim.State = state
		bank.Touch(idx, victim.Way)
		return victim.State, delay, nil
	}

	if e.h.sysType == Bus {
		if kind == trace.Write {
			delay += e.invalSiblingsWithLine(bankIdx, process, addr, t+delay)
			victim.State = membank.M
		} else {
			d, anyShared := e.downgradeSiblingsWithLine(bankIdx, process, addr, t+delay)
			delay += d
			if anyShared {
				victim.State = membank.S
			} else {
				victim.State = membank.E
			}
		}
		delay += e.dram.Access()
		bank.Touch(idx, victim.Way)
		return victim.State, delay, nil
	}

	state, d, err := e.directoryRoundTrip(bankIdx, process, addr, kind, t+delay)
	delay += d
	if err != nil {
		return membank.I, delay, err
	}
	victim.State = state
	delay += e.dram.Access()
	bank.Touch(idx, victim.Way)
	return victim.State, delay, nil
}

// directoryRoundTrip runs one home-node round trip under
// DirectoryProtocol: transmit to the home node, consult its directory
// line, fan out invalidate/share to the prior sharers in parallel with
// pipelined header injection, and update the sharer set. It serves
// both an LLC miss and a hit-write upgrade from S, which are
// identical from the home node's perspective.
func (e *Engine) directoryRoundTrip(requester, process int, addr uint64, kind trace.Kind, t int64) (membank.LineState, int64, error) {
	home := directory.HomeNode(addr, e.h.blockSize, e.h.NumTop())

	reqDelay, err := e.h.Network().Transmit(requester, home, 8, t)
	if err != nil {
		return membank.I, 0, err
	}

	dir, err := e.h.DirectoryFor(home)
	if err != nil {
		return membank.I, reqDelay, err
	}
	dbank := dir.Bank()
	dtag, didx, _ := dbank.Decompose(addr)
	reqDelay += dbank.Geometry().AccessTime

	dbank.LockUp(didx)
	dline, dhit := dbank.Access(process, dtag, didx)
	dbank.Accesses.Add(1)
	if !dhit {
		dbank.Misses.Add(1)
		dline, _, _, _ = dbank.Replace(process, dtag, didx)
		dir.ClearSharers(dline)
		dline.State = membank.I
	}

	var targets []int
	invalidate := kind == trace.Write

	if invalidate {
		if dir.IsBroadcast(dline) {
			// A degraded B line no longer tracks precise sharers: fan
			// out to every bank at the LLC level rather than just the
			// handful of pointers still held.
			for id := 0; id < e.h.NumTop(); id++ {
				if id != requester {
					targets = append(targets, id)
				}
			}
		} else {
			dline.Sharers.ForEach(func(id int) {
				if id != requester {
					targets = append(targets, id)
				}
			})
		}
		dir.ClearSharers(dline)
		dir.AddSharer(dline, requester)
		dline.State = membank.M
	} else {
		wasOwned := dline.State == membank.M || dline.State == membank.E
		if wasOwned {
			dline.Sharers.ForEach(func(id int) {
				if id != requester {
					targets = append(targets, id)
				}
			})
		}
		dir.AddSharer(dline, requester)
		if dline.State == membank.I {
			dline.State = membank.E
		} else if dline.State != membank.B {
			dline.State = membank.S
		}
	}

	dbank.Touch(didx, dline.Way)
	resultState := dline.State
	dbank.UnlockUp(didx)

	fanoutDelay := e.directoryFanout(targets, invalidate, process, addr, home, t+reqDelay)

	respDelay, err := e.h.Network().Transmit(home, requester, 8, t+reqDelay+fanoutDelay)
	if err != nil {
		return membank.I, reqDelay + fanoutDelay, err
	}

	return resultState, reqDelay + fanoutDelay + respDelay, nil
}

// directoryWriteback notifies the evicted address's home node that
// requester no longer holds the line, keeping the directory's sharer
// set consistent with what the LLC banks actually cache after an
// eviction (spec scenario: an LLC eviction of an M/E line writes back
// to the home, which updates the directory accordingly).
func (e *Engine) directoryWriteback(requester, process int, addr uint64, t int64) int64 {
	home := directory.HomeNode(addr, e.h.blockSize, e.h.NumTop())

	reqDelay, err := e.h.Network().Transmit(requester, home, 8, t)
	if err != nil {
		return 0
	}

	dir, err := e.h.DirectoryFor(home)
	if err != nil {
		return reqDelay
	}
	dbank := dir.Bank()
	dtag, didx, _ := dbank.Decompose(addr)
	reqDelay += dbank.Geometry().AccessTime

	dbank.LockUp(didx)
	if dline, hit := dbank.Access(process, dtag, didx); hit {
		dir.RemoveSharer(dline, requester)
		if dline.Sharers.Len() == 0 && !dir.IsBroadcast(dline) {
			dline.State = membank.I
		}
		dbank.Touch(didx, dline.Way)
	}
	dbank.UnlockUp(didx)

	return reqDelay
}

// directoryFanout sends one message per target in parallel; the i-th
// message is injected i*header_flits cycles after the first, and the
// charged latency is the max across all parallel paths, per spec
// §4.5.2.
func (e *Engine) directoryFanout(targets []int, invalidate bool, process int, addr uint64, from int, t int64) int64 {
	if len(targets) == 0 {
		return 0
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var maxDelay int64

	for i, target := range targets {
		wg.Add(1)
		go func(i, target int) {
			defer wg.Done()
			pipeline := int64(i * e.h.headerFlits)
			netDelay, err := e.h.Network().Transmit(from, target, 8, t+pipeline)
			if err != nil {
				return
			}
			var subDelay int64
			if invalidate {
				subDelay = e.invalSubtree(e.h.TopLevel(), target, process, addr, t+pipeline+netDelay)
			} else {
				subDelay = e.shareSubtree(e.h.TopLevel(), target, process, addr, t+pipeline+netDelay)
			}
			total := pipeline + netDelay + subDelay
			mu.Lock()
			if total > maxDelay {
				maxDelay = total
			}
			mu.Unlock()
		}(i, target)
	}
	wg.Wait()
	return maxDelay
}

// invalSiblingsWithLine peeks every other top-level bank's tag array
// and invalidates (down through its subtree) the ones that hold addr.
func (e *Engine) invalSiblingsWithLine(self, process int, addr uint64, t int64) int64 {
	var total int64
	for idx := 0; idx < e.h.NumTop(); idx++ {
		if idx == self {
			continue
		}
		bank, err := e.h.BankFor(e.h.TopLevel(), idx)
		if err != nil {
			continue
		}
		tag, sidx, _ := bank.Decompose(addr)
		if _, hit := bank.Access(process, tag, sidx); hit {
			total += e.invalSubtree(e.h.TopLevel(), idx, process, addr, t)
		}
	}
	return total
}

// downgradeSiblingsWithLine peeks every other top-level bank and
// downgrades (share) any M/E holder of addr to S, reporting whether
// any sibling held it.
func (e *Engine) downgradeSiblingsWithLine(self, process int, addr uint64, t int64) (int64, bool) {
	var total int64
	any := false
	for idx := 0; idx < e.h.NumTop(); idx++ {
		if idx == self {
			continue
		}
		bank, err := e.h.BankFor(e.h.TopLevel(), idx)
		if err != nil {
			continue
		}
		tag, sidx, _ := bank.Decompose(addr)
		if _, hit := bank.Access(process, tag, sidx); hit {
			any = true
			total += e.shareSubtree(e.h.TopLevel(), idx, process, addr, t)
		}
	}
	return total, any
}

// invalChildren walks the subtree rooted at the children of (level,
// idx) (i.e. skipping idx itself), forcing every matching line to I,
// and returns idx's own access time plus the max delay across children.
func (e *Engine) invalChildren(level, idx, process int, addr uint64, t int64) int64 {
	if level == 0 {
		return 0
	}
	bank, err := e.h.BankFor(level, idx)
	if err != nil {
		return 0
	}
	own := bank.Geometry().AccessTime
	return own + e.descend(level-1, e.h.ChildIndices(level, idx), process, addr, t, true)
}

// shareChildren is invalChildren's read-side counterpart: it
// downgrades matching M/E lines to S instead of invalidating them.
func (e *Engine) shareChildren(level, idx, process int, addr uint64, t int64) int64 {
	if level == 0 {
		return 0
	}
	bank, err := e.h.BankFor(level, idx)
	if err != nil {
		return 0
	}
	own := bank.Geometry().AccessTime
	return own + e.descend(level-1, e.h.ChildIndices(level, idx), process, addr, t, false)
}

// invalSubtree is invalChildren's whole-subtree counterpart: it also
// forces (level, idx)'s own line to I before descending.
func (e *Engine) invalSubtree(level, idx, process int, addr uint64, t int64) int64 {
	return e.visitOne(level, idx, process, addr, t, true)
}

// shareSubtree is shareChildren's whole-subtree counterpart.
func (e *Engine) shareSubtree(level, idx, process int, addr uint64, t int64) int64 {
	return e.visitOne(level, idx, process, addr, t, false)
}

func (e *Engine) visitOne(level, idx, process int, addr uint64, t int64, invalidate bool) int64 {
	bank, err := e.h.BankFor(level, idx)
	if err != nil {
		return 0
	}
	tag, sidx, _ := bank.Decompose(addr)

	bank.LockDown(sidx)
	if line, hit := bank.Access(process, tag, sidx); hit {
		if invalidate {
			if line.State == membank.M {
				bank.Writebacks.Add(1)
			}
			if e.h.sysType == Bus && e.h.SharedLLC() && level == e.h.TopLevel() && (line.State == membank.M || line.State == membank.E) {
				// The shared LLC retains the data on the invalidated
				// owner's behalf: the line stays valid (state V)
				// instead of dropping to I.
				line.State = membank.V
			} else {
				line.State = membank.I
			}
		} else if line.State == membank.M || line.State == membank.E {
			bank.Writebacks.Add(1)
			line.State = membank.S
		}
	}
	bank.UnlockDown(sidx)

	own := bank.Geometry().AccessTime
	if level == 0 {
		return own
	}
	return own + e.descend(level-1, e.h.ChildIndices(level, idx), process, addr, t, invalidate)
}

func (e *Engine) descend(level int, children []int, process int, addr uint64, t int64, invalidate bool) int64 {
	if len(children) == 0 {
		return 0
	}
	var wg sync.WaitGroup
	var mu sync.Mutex
	var max int64
	for _, c := range children {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			var d int64
			if invalidate {
				d = e.invalSubtree(level, c, process, addr, t)
			} else {
				d = e.shareSubtree(level, c, process, addr, t)
			}
			mu.Lock()
			if d > max {
				max = d
			}
			mu.Unlock()
		}(c)
	}
	wg.Wait()
	return max
}
