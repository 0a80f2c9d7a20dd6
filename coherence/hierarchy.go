// Package coherence implements the two coherence protocol state
// machines (bus-MESI and directory-MESI) that compose the cache
// hierarchy, interconnect, and directory into a single per-reference
// delay: spec component C8.
package coherence

import (
	"sync"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/prime-uncore/directory"
	"github.com/joeycumines/prime-uncore/interconnect/bus"
	"github.com/joeycumines/prime-uncore/interconnect/mesh"
	"github.com/joeycumines/prime-uncore/membank"
	"github.com/joeycumines/prime-uncore/simerr"
)

// SysType selects the coherence protocol.
type SysType int

const (
	Bus SysType = iota
	DirectoryProtocol
)

// LevelConfig describes one cache level's geometry and its fan-in from
// the level below.
type LevelConfig struct {
	Share      int // number of level-(k-1) banks feeding one bank at this level; level 0's Share is ignored
	NumSets    int
	NumWays    int
	BlockSize  int
	AccessTime int64
}

// Hierarchy lazily instantiates and links the bank tree: leaves are
// per-core L1 banks (level 0), the root is the LLC slice set (level
// numLevels-1).
type Hierarchy struct {
	sysType  SysType
	levels   []LevelConfig
	numCores int
	numTop   int // number of banks (and, for DirectoryProtocol, network nodes) at the top level

	mu    sync.Mutex
	banks []map[int]*membank.Bank

	buses []*bus.Bus // buses[level], level >= 1; nil entries unused under DirectoryProtocol

	dirProto   directory.Protocol
	maxSharers int
	dirAccessTime int64 // 0 means "use the top cache level's access_time"
	sharedLLC  bool
	dirMu      sync.Mutex
	dirs       map[int]*directory.Directory // keyed by home node / top-level bank index
	net        *mesh.Mesh
	headerFlits int
	blockSize   int

	log *logiface.Logger[logiface.Event]
}

// Config bundles everything needed to build a Hierarchy.
type Config struct {
	SysType    SysType
	Levels     []LevelConfig // length numLevels, index 0 = L1
	NumCores   int
	DirProto   directory.Protocol
	MaxSharers int
	// DirAccessTime overrides the directory/shared-LLC bank's own
	// access_time (spec's directory cache record is distinct from the
	// LLC level it shadows); zero falls back to the top level's.
	DirAccessTime int64
	// SharedLLC enables the V-state ("present, no private owner") path
	// at the top cache level under the bus-MESI protocol, and is
	// forwarded to the directory/shared-LLC bank's own Config under
	// the directory protocol.
	SharedLLC bool
	Network   mesh.Config
	// Log receives Debug-level cold-instantiation notices and, via the
	// directory, Warning-level broadcast-degradation notices. Nil
	// disables logging entirely.
	Log *logiface.Logger[logiface.Event]
}

// NewHierarchy validates cfg and constructs an (empty) Hierarchy. Banks
// and directories are instantiated lazily on first touch, per spec
// §3's lifecycle note.
func NewHierarchy(cfg Config) (*Hierarchy, error) {
	if len(cfg.Levels) == 0 {
		return nil, simerr.ConfigInvalid("system.num_levels", "must be positive")
	}
	if cfg.NumCores <= 0 {
		return nil, simerr.ConfigInvalid("system.num_cores", "must be positive")
	}

	numTop := cfg.NumCores
	for k := 1; k < len(cfg.Levels); k++ {
		if cfg.Levels[k].Share <= 0 {
			return nil, simerr.ConfigInvalid("cache.share", "must be positive")
		}
		numTop = ceilDiv(numTop, cfg.Levels[k].Share)
	}

	h := &Hierarchy{
		sysType:    cfg.SysType,
		levels:     cfg.Levels,
		numCores:   cfg.NumCores,
		numTop:     numTop,
		banks:      make([]map[int]*membank.Bank, len(cfg.Levels)),
		buses:      make([]*bus.Bus, len(cfg.Levels)),
		dirProto:   cfg.DirProto,
		maxSharers: cfg.MaxSharers,
		dirAccessTime: cfg.DirAccessTime,
		sharedLLC:  cfg.SharedLLC,
		dirs:       make(map[int]*directory.Directory),
		log:        cfg.Log,
	}
	for k := range h.banks {
		h.banks[k] = make(map[int]*membank.Bank)
	}

	h.blockSize = cfg.Levels[len(cfg.Levels)-1].BlockSize

	if cfg.SysType == DirectoryProtocol {
		net, err := mesh.New(numTop, cfg.Network)
		if err != nil {
			return nil, err
		}
		h.net = net
		h.headerFlits = cfg.Network.HeaderFlits
	}

	return h, nil
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}

// NumLevels returns the number of cache levels.
func (h *Hierarchy) NumLevels() int { return len(h.levels) }

// TopLevel returns the index of the LLC level.
func (h *Hierarchy) TopLevel() int { return len(h.levels) - 1 }

// NumTop returns the number of banks (and network nodes) at the top level.
func (h *Hierarchy) NumTop() int { return h.numTop }

// SharedLLC reports whether the top cache level's V-state path is
// enabled (system.shared_llc).
func (h *Hierarchy) SharedLLC() bool { return h.sharedLLC }

// ParentIndex returns the bank index at level+1 that bank idx at level
// feeds into.
func (h *Hierarchy) ParentIndex(level, idx int) int {
	return idx / h.levels[level+1].Share
}

// ChildIndices returns the bank indices at level-1 that feed bank idx
// at level.
func (h *Hierarchy) ChildIndices(level, idx int) []int {
	share := h.levels[level].Share
	base := idx * share
	out := make([]int, 0, share)
	limit := h.numCores
	if level > 1 {
		limit = h.bankCountAt(level - 1)
	}
	for i := base; i < base+share && i < limit; i++ {
		out = append(out, i)
	}
	return out
}

func (h *Hierarchy) bankCountAt(level int) int {
	n := h.numCores
	for k := 1; k <= level; k++ {
		n = ceilDiv(n, h.levels[k].Share)
	}
	return n
}

// BankFor returns the (lazily instantiated) bank at (level, idx).
func (h *Hierarchy) BankFor(level, idx int) (*membank.Bank, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if b, ok := h.banks[level][idx]; ok {
		return b, nil
	}
	lvl := h.levels[level]
	b, err := membank.New(membank.Geometry{
		NumSets:     lvl.NumSets,
		NumWays:     lvl.NumWays,
		Granularity: lvl.BlockSize,
		AccessTime:  lvl.AccessTime,
		Share:       lvl.Share,
	})
	if err != nil {
		return nil, err
	}
	h.banks[level][idx] = b
	if h.log != nil {
		h.log.Debug().Int("level", level).Int("index", idx).Log("cold bank instantiated")
	}
	return b, nil
}

// BusFor returns the (lazily instantiated) shared bus for siblings at
// level, used only when sysType == Bus. The bus's fixed latency is the
// level's AccessTime; system.bus_latency is not consulted.
func (h *Hierarchy) BusFor(level int) *bus.Bus {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.buses[level] == nil {
		h.buses[level] = bus.New(h.levels[level].AccessTime)
		if h.log != nil {
			h.log.Debug().Int("level", level).Log("cold bus instantiated")
		}
	}
	return h.buses[level]
}

// DirectoryFor returns the (lazily instantiated) directory/shared-LLC
// bank for the given home node, used only when sysType ==
// DirectoryProtocol.
func (h *Hierarchy) DirectoryFor(node int) (*directory.Directory, error) {
	h.dirMu.Lock()
	defer h.dirMu.Unlock()
	if d, ok := h.dirs[node]; ok {
		return d, nil
	}
	top := h.levels[h.TopLevel()]
	accessTime := top.AccessTime
	if h.dirAccessTime > 0 {
		accessTime = h.dirAccessTime
	}
	d, err := directory.New(directory.Config{
		NumSets:    top.NumSets,
		NumWays:    top.NumWays,
		BlockSize:  top.BlockSize,
		AccessTime: accessTime,
		Protocol:   h.dirProto,
		MaxSharers: h.maxSharers,
		SharedLLC:  h.sharedLLC,
		Log:        h.log,
	})
	if err != nil {
		return nil, err
	}
	h.dirs[node] = d
	if h.log != nil {
		h.log.Debug().Int("node", node).Log("cold directory instantiated")
	}
	return d, nil
}

// Network returns the mesh, valid only under DirectoryProtocol.
func (h *Hierarchy) Network() *mesh.Mesh { return h.net }

// InstantiatedBanks returns a snapshot of the banks materialised so
// far at level, for report output. It never instantiates new ones.
func (h *Hierarchy) InstantiatedBanks(level int) map[int]*membank.Bank {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[int]*membank.Bank, len(h.banks[level]))
	for k, v := range h.banks[level] {
		out[k] = v
	}
	return out
}

// InstantiatedDirectory returns the directory at node if one has
// already been materialised, or nil otherwise. It never instantiates
// one.
func (h *Hierarchy) InstantiatedDirectory(node int) *directory.Directory {
	h.dirMu.Lock()
	defer h.dirMu.Unlock()
	return h.dirs[node]
}

// InstantiatedBus returns the shared bus at level if one has already
// been materialised, or nil otherwise (always nil under
// DirectoryProtocol). It never instantiates one.
func (h *Hierarchy) InstantiatedBus(level int) *bus.Bus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buses[level]
}
