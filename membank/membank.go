// Package membank implements the set-associative tag array shared by
// every data cache level, the TLB, and (as a field of
// directory.Directory) the directory bank: spec components C4/C6/C7.
// Replacement is LRU;
// per-set locking is split into an "up" direction (requests moving
// from children toward the parent) and a "down" direction (coherence
// fan-out moving from the parent toward children), so an upward miss
// walk and a downward invalidation can never deadlock each other.
package membank

import (
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/prime-uncore/simerr"
)

// LineState is the tagged variant a cache line's coherence state takes.
// A data-cache line is always in {I,S,E,M}. A TLB entry is in {I,V}. A
// directory/shared-LLC entry is in {I,S,E,M,B} (see package directory).
type LineState uint8

const (
	I LineState = iota // invalid
	S                   // shared
	E                   // exclusive
	M                   // modified
	V                   // valid, no coherence interest (TLB / shared-LLC)
	B                   // broadcast (directory-only; see package directory)
)

func (s LineState) String() string {
	switch s {
	case I:
		return "I"
	case S:
		return "S"
	case E:
		return "E"
	case M:
		return "M"
	case V:
		return "V"
	case B:
		return "B"
	default:
		return "?"
	}
}

// SharerSet tracks which child banks hold a block, for directory and
// shared-LLC lines only; ordinary data-cache lines leave this nil.
// Concrete implementations (full bitset, or limited-pointer with
// broadcast overflow) live in package directory.
type SharerSet interface {
	Add(bankID int) (overflowed bool)
	Remove(bankID int)
	Has(bankID int) bool
	Len() int
	Clear()
	ForEach(f func(bankID int))
}

// Line is one way of one set.
type Line struct {
	State        LineState
	OwnerProcess int
	Set, Way     int
	Tag          uint64
	Timestamp    int64
	PPage        uint64 // physical frame, TLB lines only
	Sharers      SharerSet
}

// Geometry is the fixed, post-init-immutable shape of a bank.
type Geometry struct {
	NumSets     int
	NumWays     int
	Granularity int // block_size (data banks) or page_size (TLB banks)
	AccessTime  int64
	Share       int // how many child banks/cores feed this bank
}

type setLock struct {
	up, down sync.Mutex
}

// Bank is a fixed-geometry tag array: spec component C4 (and, by reuse,
// C6/C7's structural half).
type Bank struct {
	geo        Geometry
	offsetBits uint
	indexBits  uint
	indexMask  uint64

	sets  [][]Line
	locks []setLock
	clock atomic.Int64

	Accesses   atomic.Int64
	Misses     atomic.Int64
	Evictions  atomic.Int64
	Writebacks atomic.Int64
}

// New validates geo and constructs a Bank. NumSets and Granularity must
// be powers of two so that Decompose/Compose round-trip exactly
// (testable property 4); this matches every real cache geometry given
// in spec.md's scenarios.
func New(geo Geometry) (*Bank, error) {
	if geo.NumSets <= 0 || !isPowerOfTwo(geo.NumSets) {
		return nil, simerr.ConfigInvalid("cache.num_sets", "must be a positive power of two")
	}
	if geo.NumWays <= 0 {
		return nil, simerr.ConfigInvalid("cache.num_ways", "must be positive")
	}
	if geo.Granularity <= 0 || !isPowerOfTwo(geo.Granularity) {
		return nil, simerr.ConfigInvalid("cache.block_size", "must be a positive power of two")
	}

	b := &Bank{
		geo:        geo,
		offsetBits: uint(bits.TrailingZeros(uint(geo.Granularity))),
		indexBits:  uint(bits.TrailingZeros(uint(geo.NumSets))),
		sets:       make([][]Line, geo.NumSets),
		locks:      make([]setLock, geo.NumSets),
	}
	b.indexMask = uint64(geo.NumSets - 1)
	for i := range b.sets {
		b.sets[i] = make([]Line, geo.NumWays)
		for w := range b.sets[i] {
			b.sets[i][w].Set = i
			b.sets[i][w].Way = w
		}
	}
	return b, nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Geometry returns the bank's immutable geometry.
func (b *Bank) Geometry() Geometry { return b.geo }

// Decompose splits addr into (tag, index, offset) per the bank's
// granularity: offset = addr mod granularity; index = (addr >>
// offsetBits) mod numSets; tag = addr >> (offsetBits + indexBits).
func (b *Bank) Decompose(addr uint64) (tag uint64, index int, offset uint64) {
	offset = addr & (uint64(b.geo.Granularity) - 1)
	index = int((addr >> b.offsetBits) & b.indexMask)
	tag = addr >> (b.offsetBits + b.indexBits)
	return
}

// Compose is the inverse of Decompose, for an aligned address (offset
// within [0, granularity)).
func (b *Bank) Compose(tag uint64, index int, offset uint64) uint64 {
	return (tag << (b.offsetBits + b.indexBits)) | (uint64(index) << b.offsetBits) | offset
}

// NextTimestamp returns a fresh, monotonically increasing LRU key.
func (b *Bank) NextTimestamp() int64 {
	return b.clock.Add(1)
}

// Touch refreshes a line's LRU timestamp, e.g. on a hit.
func (b *Bank) Touch(index, way int) {
	b.sets[index][way].Timestamp = b.NextTimestamp()
}

// Line returns a pointer to the live line at (index, way), for direct
// inspection/mutation by the coherence engine while holding the
// relevant set lock.
func (b *Bank) Line(index, way int) *Line {
	return &b.sets[index][way]
}

// Access returns the matching line iff state != I and (process, tag)
// matches; it performs no mutation.
func (b *Bank) Access(process int, tag uint64, index int) (*Line, bool) {
	for w := range b.sets[index] {
		l := &b.sets[index][w]
		if l.State != I && l.OwnerProcess == process && l.Tag == tag {
			return l, true
		}
	}
	return nil, false
}

// Replace selects a victim way for (process, tag) at index: the first
// invalid way, or else the way with the minimum timestamp (LRU). It
// re-stamps the chosen way with the new tag and owner, but deliberately
// leaves State untouched — the caller (the coherence engine) sets the
// new state next, per spec §4.3. If the victim line was valid before
// replacement, evicted reports its prior (process, address) so the
// caller can propagate writebacks/invalidations.
func (b *Bank) Replace(process int, tag uint64, index int) (victim *Line, evicted bool, evictedProcess int, evictedAddr uint64) {
	set := b.sets[index]

	way := -1
	for w := range set {
		if set[w].State == I {
			way = w
			break
		}
	}
	if way == -1 {
		way = 0
		min := set[0].Timestamp
		for w := 1; w < len(set); w++ {
			if set[w].Timestamp < min {
				min = set[w].Timestamp
				way = w
			}
		}
	}

	victim = &set[way]
	if victim.State != I {
		evicted = true
		evictedProcess = victim.OwnerProcess
		evictedAddr = b.Compose(victim.Tag, index, 0)
	}

	victim.Tag = tag
	victim.OwnerProcess = process
	victim.Timestamp = b.NextTimestamp()

	return victim, evicted, evictedProcess, evictedAddr
}

// Flush forces (index, way) to Invalid and clears its sharer set, per
// spec's flushLine. The tag is captured (by the caller, via
// Replace/Access) before this is invoked where the reconstructed
// address is needed — this implementation resolves the source's
// "clears tag before reading it" ambiguity by simply never reading the
// tag after flushing, rather than reproducing the zero-tag quirk.
func (b *Bank) Flush(index, way int) {
	l := &b.sets[index][way]
	l.State = I
	l.Tag = 0
	l.OwnerProcess = 0
	if l.Sharers != nil {
		l.Sharers.Clear()
	}
}

// FlushAll forces every line in the bank to Invalid. The source
// iterated num_sets×num_sets (a bug per spec §9); this iterates
// num_sets×num_ways, the evidently-intended shape.
func (b *Bank) FlushAll() {
	for i := range b.sets {
		for w := range b.sets[i] {
			b.Flush(i, w)
		}
	}
}

// LockUp/UnlockUp guard the set for requests entering this bank from a
// child (moving toward the parent).
func (b *Bank) LockUp(index int)   { b.locks[index].up.Lock() }
func (b *Bank) UnlockUp(index int) { b.locks[index].up.Unlock() }

// LockDown/UnlockDown guard the set for coherence fan-out entering this
// bank from the parent (moving toward children).
func (b *Bank) LockDown(index int)   { b.locks[index].down.Lock() }
func (b *Bank) UnlockDown(index int) { b.locks[index].down.Unlock() }

// NumSets returns the number of sets in the bank.
func (b *Bank) NumSets() int { return b.geo.NumSets }

// NumWays returns the number of ways per set.
func (b *Bank) NumWays() int { return b.geo.NumWays }
