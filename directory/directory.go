// Package directory implements the home-node sharer tracker used by
// the directory-MESI protocol: spec component C7. No Directory is
// instantiated under the bus-MESI protocol; its shared-LLC V state is
// handled on the top-level cache banks by package coherence.
package directory

import (
	"sync/atomic"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/prime-uncore/membank"
	"github.com/joeycumines/prime-uncore/simerr"
)

// Protocol selects how sharer sets are represented.
type Protocol int

const (
	FullMap Protocol = iota
	LimitedPtr
)

// Config carries the directory/shared-LLC bank geometry plus the
// sharer-tracking protocol.
type Config struct {
	NumSets, NumWays int
	BlockSize        int
	AccessTime       int64
	Protocol         Protocol
	MaxSharers       int
	SharedLLC        bool
	// Log receives a Warning notice whenever a line degrades to the
	// broadcast state B. Nil disables logging entirely.
	Log *logiface.Logger[logiface.Event]
}

// Directory is one home node's (or one shared-LLC slice's) bank.
type Directory struct {
	bank       *membank.Bank
	protocol   Protocol
	maxSharers int
	sharedLLC  bool
	log        *logiface.Logger[logiface.Event]

	TotalBroadcasts atomic.Int64
}

// New constructs a Directory and pre-allocates every line's sharer set,
// since membank.Line.Sharers is nil by default and is only ever
// populated here (directory/shared-LLC lines, never plain data lines).
func New(cfg Config) (*Directory, error) {
	if cfg.Protocol == LimitedPtr && cfg.MaxSharers <= 0 {
		return nil, simerr.ConfigInvalid("system.max_num_sharers", "must be positive for LIMITED_PTR")
	}
	bank, err := membank.New(membank.Geometry{
		NumSets:     cfg.NumSets,
		NumWays:     cfg.NumWays,
		Granularity: cfg.BlockSize,
		AccessTime:  cfg.AccessTime,
	})
	if err != nil {
		return nil, err
	}
	d := &Directory{bank: bank, protocol: cfg.Protocol, maxSharers: cfg.MaxSharers, sharedLLC: cfg.SharedLLC, log: cfg.Log}
	for s := 0; s < bank.NumSets(); s++ {
		for w := 0; w < bank.NumWays(); w++ {
			bank.Line(s, w).Sharers = d.newSharerSet()
		}
	}
	return d, nil
}

func (d *Directory) newSharerSet() membank.SharerSet {
	if d.protocol == LimitedPtr {
		return newLimitedPtr(d.maxSharers)
	}
	return newFullMap()
}

// Bank exposes the underlying tag array for the coherence engine to
// decompose addresses, lock sets, and access/replace lines directly.
func (d *Directory) Bank() *membank.Bank { return d.bank }

// SharedLLC reports whether this directory was configured with
// system.shared_llc. The coherence engine never moves a directory line
// to V: a line whose last sharer writes back drops to I either way.
func (d *Directory) SharedLLC() bool { return d.sharedLLC }

// AddSharer records bankID as a sharer of line. If the LIMITED_PTR
// cap would be exceeded, the line degrades to state B and the
// broadcast counter is incremented; B is functionally S to the
// requester but forces every future coherence event on this line to
// fan out to all banks at the LLC level.
func (d *Directory) AddSharer(line *membank.Line, bankID int) {
	if line.Sharers == nil {
		line.Sharers = d.newSharerSet()
	}
	if line.Sharers.Add(bankID) && line.State != membank.B {
		line.State = membank.B
		d.TotalBroadcasts.Add(1)
		if d.log != nil {
			d.log.Warning().Int("bank", bankID).Log("directory line degraded to broadcast")
		}
	}
}

// RemoveSharer drops bankID from line's sharer set.
func (d *Directory) RemoveSharer(line *membank.Line, bankID int) {
	if line.Sharers != nil {
		line.Sharers.Remove(bankID)
	}
}

// ClearSharers empties line's sharer set, e.g. on transition to I or V.
func (d *Directory) ClearSharers(line *membank.Line) {
	if line.Sharers != nil {
		line.Sharers.Clear()
	}
}

// IsBroadcast reports whether line is in the degraded B state.
func (d *Directory) IsBroadcast(line *membank.Line) bool {
	return line.State == membank.B
}

// HomeNode derives the home network node for addr, per spec §4.5.2:
// floor((addr/block_size) mod 2^ceil(log2(numNodes))), clamped down if
// it lands at or beyond numNodes (which happens whenever numNodes is
// not itself a power of two).
func HomeNode(addr uint64, blockSize int, numNodes int) int {
	blockNum := addr / uint64(blockSize)
	width := nextPow2(numNodes)
	home := int(blockNum % uint64(width))
	if home >= numNodes {
		home -= width - numNodes
		if home < 0 {
			home = 0
		}
	}
	return home
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
