// Package uncore implements the entry point invoked per memory
// reference: spec component C10. It resolves the reference's core
// slot via the thread scheduler, optionally runs TLB translation, and
// runs the configured coherence protocol, returning the accumulated
// additional latency for that reference.
package uncore

import (
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/prime-uncore/coherence"
	"github.com/joeycumines/prime-uncore/corepool"
	"github.com/joeycumines/prime-uncore/pagetable"
	"github.com/joeycumines/prime-uncore/simerr"
	"github.com/joeycumines/prime-uncore/tlb"
	"github.com/joeycumines/prime-uncore/trace"
)

// Config bundles every sub-component's construction parameters.
type Config struct {
	Hierarchy      coherence.Config
	DRAMAccessTime int64

	NumCores  int
	TLBEnable bool
	TLB       tlb.Config

	ProcSyncInterval   time.Duration
	ThreadSyncInterval time.Duration
}

// Dispatcher is the uncore entry point.
type Dispatcher struct {
	sched  *corepool.Scheduler
	engine *coherence.Engine
	tlbs   []*tlb.TLB       // nil if TLB disabled
	table  *pagetable.Table // nil if TLB disabled
}

// New constructs a Dispatcher from cfg. log may be nil.
func New(cfg Config, log *logiface.Logger[logiface.Event]) (*Dispatcher, error) {
	hcfg := cfg.Hierarchy
	hcfg.Log = log
	h, err := coherence.NewHierarchy(hcfg)
	if err != nil {
		return nil, err
	}
	engine := coherence.NewEngine(h, coherence.NewDRAM(cfg.DRAMAccessTime))

	sched, err := corepool.New(cfg.NumCores, cfg.ProcSyncInterval, cfg.ThreadSyncInterval, log)
	if err != nil {
		return nil, err
	}

	d := &Dispatcher{sched: sched, engine: engine}

	if cfg.TLBEnable {
		pt, err := pagetable.New(cfg.TLB.PageSize)
		if err != nil {
			return nil, err
		}
		d.table = pt
		d.tlbs = make([]*tlb.TLB, cfg.NumCores)
		for i := range d.tlbs {
			t, err := tlb.New(cfg.TLB, pt)
			if err != nil {
				return nil, err
			}
			d.tlbs[i] = t
		}
	}

	return d, nil
}

// Access runs ref, issued at issueTime by (process, thread), through
// TLB translation (if enabled) and the coherence engine, returning the
// total additional latency charged. If no core slot is free it returns
// -1 with simerr.ErrPoolExhausted.
func (d *Dispatcher) Access(process, thread int, ref trace.Ref, issueTime int64) (int64, error) {
	slot, err := d.sched.Alloc(process, thread)
	if err != nil {
		return -1, err
	}

	t := issueTime
	var tlbDelay int64
	addr := ref.Addr
	if d.tlbs != nil {
		paddr, d2 := d.tlbs[slot].Translate(process, addr)
		addr = paddr
		tlbDelay = d2
	}

	delay, err := d.engine.Access(slot, process, addr, ref.Kind, t+tlbDelay)
	if err != nil {
		return 0, err
	}
	if tlbDelay < 0 || delay < 0 {
		return 0, simerr.NegativeDelay("uncore.access", tlbDelay+delay)
	}
	return tlbDelay + delay, nil
}

// Scheduler exposes the underlying thread scheduler, for report output
// and for the driver to alloc/dealloc across process/thread lifecycle
// messages.
func (d *Dispatcher) Scheduler() *corepool.Scheduler { return d.sched }

// Engine exposes the coherence engine, for report output.
func (d *Dispatcher) Engine() *coherence.Engine { return d.engine }

// PageTable exposes the shared page table, nil if the TLB is disabled.
func (d *Dispatcher) PageTable() *pagetable.Table { return d.table }
