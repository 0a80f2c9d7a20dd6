// Package pagetable implements the virtual-to-physical page map: spec
// component C5. Allocation is sequential (never reused) and guarded by
// a single shared lock; there is no eviction.
package pagetable

import (
	"sync"

	"github.com/joeycumines/prime-uncore/simerr"
)

// Table maps (process, virtual page) to a physical frame number,
// allocating frames sequentially on first touch.
type Table struct {
	mu         sync.Mutex
	pageSize   int
	nextFrame  uint64
	frames     map[key]uint64
}

type key struct {
	process int
	vpage   uint64
}

// New constructs an empty Table for the given page size in bytes.
func New(pageSize int) (*Table, error) {
	if pageSize <= 0 {
		return nil, simerr.ConfigInvalid("system.page_size", "must be positive")
	}
	return &Table{
		pageSize: pageSize,
		frames:   make(map[key]uint64),
	}, nil
}

// Frame resolves the virtual page containing vaddr to a physical frame
// number for the given process, allocating a fresh frame on first
// touch. Frame allocation never fails and is never reclaimed.
func (t *Table) Frame(process int, vaddr uint64) uint64 {
	vpage := vaddr / uint64(t.pageSize)

	t.mu.Lock()
	k := key{process: process, vpage: vpage}
	frame, ok := t.frames[k]
	if !ok {
		frame = t.nextFrame
		t.nextFrame++
		t.frames[k] = frame
	}
	t.mu.Unlock()

	return frame
}

// Translate resolves a virtual address to a physical address for the
// given process: paddr = frame*page_size + (vaddr mod page_size).
func (t *Table) Translate(process int, vaddr uint64) uint64 {
	offset := vaddr % uint64(t.pageSize)
	return t.Frame(process, vaddr)*uint64(t.pageSize) + offset
}

// FrameCount reports how many distinct frames have been allocated so
// far, across every process.
func (t *Table) FrameCount() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextFrame
}

// PageSize returns the configured page size in bytes.
func (t *Table) PageSize() int { return t.pageSize }
