// Package tlb implements the per-core translation look-aside buffer:
// spec component C6. It reuses the set-associative bank logic in
// package membank, decomposed on page_size instead of block_size, and
// backs misses with a shared package pagetable allocator.
package tlb

import (
	"github.com/joeycumines/prime-uncore/membank"
	"github.com/joeycumines/prime-uncore/pagetable"
	"github.com/joeycumines/prime-uncore/simerr"
)

// TLB is one core's translation cache.
type TLB struct {
	bank      *membank.Bank
	table     *pagetable.Table
	missDelay int64
}

// Config carries the TLB cache geometry plus the shared page table and
// per-miss delay.
type Config struct {
	NumSets, NumWays int
	PageSize         int
	MissDelay        int64
}

// New constructs a TLB sharing the given page table.
func New(cfg Config, table *pagetable.Table) (*TLB, error) {
	if cfg.MissDelay < 0 {
		return nil, simerr.NegativeDelay("tlb.page_miss_delay", cfg.MissDelay)
	}
	bank, err := membank.New(membank.Geometry{
		NumSets:     cfg.NumSets,
		NumWays:     cfg.NumWays,
		Granularity: cfg.PageSize,
	})
	if err != nil {
		return nil, err
	}
	return &TLB{bank: bank, table: table, missDelay: cfg.MissDelay}, nil
}

// Translate resolves vaddr to a physical address for process, charging
// missDelay on a TLB miss. Entries are valid (V) or invalid (I); there
// is no dirty/shared distinction at this level.
func (t *TLB) Translate(process int, vaddr uint64) (paddr uint64, delay int64) {
	tag, index, _ := t.bank.Decompose(vaddr)
	pageSize := uint64(t.table.PageSize())
	offset := vaddr % pageSize

	t.bank.LockUp(index)
	defer t.bank.UnlockUp(index)

	t.bank.Accesses.Add(1)

	if line, hit := t.bank.Access(process, tag, index); hit {
		t.bank.Touch(line.Set, line.Way)
		return line.PPage*pageSize + offset, 0
	}

	t.bank.Misses.Add(1)
	victim, _, _, _ := t.bank.Replace(process, tag, index)
	frame := t.table.Frame(process, vaddr)
	victim.State = membank.V
	victim.PPage = frame

	return frame*pageSize + offset, t.missDelay
}

// Bank exposes the underlying tag array for stats reporting.
func (t *TLB) Bank() *membank.Bank { return t.bank }
