// Package mesh models the on-chip interconnect: a 2-D or 3-D mesh of
// routers and links using dimension-order (XY/XYZ) routing, per spec
// component C3. Every hop charges a fixed router delay plus per-link
// contention; statistics are aggregated under a single mutex.
package mesh

import (
	"sync"

	"github.com/joeycumines/prime-uncore/interconnect/link"
	"github.com/joeycumines/prime-uncore/queuemodel"
	"github.com/joeycumines/prime-uncore/simerr"
)

// Type selects the mesh dimensionality.
type Type uint8

const (
	Mesh2D Type = iota
	Mesh3D
)

// direction identifies one of the (up to) six outgoing links of a
// router: +X, -X, +Y, -Y, +Z, -Z.
type direction uint8

const (
	dirPlusX direction = iota
	dirMinusX
	dirPlusY
	dirMinusY
	dirPlusZ
	dirMinusZ
)

// Stats accumulates network-wide counters under one mutex, per the
// concurrency model (§5): "the network statistics block has one mutex".
type Stats struct {
	mu                  sync.Mutex
	AccessCount         int64
	TotalDistance       int64
	TotalRouterDelay    int64
	TotalLinkDelay      int64
	TotalInjectDelay    int64
	TotalContentionDelay int64
}

func (s *Stats) record(distance int, routerDelay, linkDelay, injectDelay, contentionDelay int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AccessCount++
	s.TotalDistance += int64(distance)
	s.TotalRouterDelay += routerDelay
	s.TotalLinkDelay += linkDelay
	s.TotalInjectDelay += injectDelay
	s.TotalContentionDelay += contentionDelay
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		AccessCount:          s.AccessCount,
		TotalDistance:        s.TotalDistance,
		TotalRouterDelay:     s.TotalRouterDelay,
		TotalLinkDelay:       s.TotalLinkDelay,
		TotalInjectDelay:     s.TotalInjectDelay,
		TotalContentionDelay: s.TotalContentionDelay,
	}
}

// AverageDelay returns the mean per-access total delay, or 0 if no
// accesses have been recorded.
func (s Stats) AverageDelay() float64 {
	if s.AccessCount == 0 {
		return 0
	}
	total := s.TotalRouterDelay + s.TotalLinkDelay + s.TotalInjectDelay + s.TotalContentionDelay
	return float64(total) / float64(s.AccessCount)
}

// Mesh is a fixed-topology 2-D or 3-D mesh of routers, sized to the
// smallest square (or cube) that fits NumNodes.
type Mesh struct {
	typ         Type
	numNodes    int
	width       int // ceil(sqrt(N)) for 2D, ceil(cbrt(N)) for 3D
	routerDelay int64
	linkDelay   int64
	headerFlits int
	dataWidth   int
	injectDelay int64

	mu    sync.Mutex
	links map[linkKey]*link.Link

	Stats Stats
}

type linkKey struct {
	node int
	dir  direction
}

// Config carries the network options recognised by the core, per spec
// §6 (the "network" config record).
type Config struct {
	Type        Type
	DataWidth   int
	HeaderFlits int
	RouterDelay int64
	LinkDelay   int64
	InjectDelay int64
}

// New constructs a Mesh sized for numNodes. Returns
// simerr.ErrConfigurationInvalid if numNodes <= 0 or any width/flit
// option is non-positive.
func New(numNodes int, cfg Config) (*Mesh, error) {
	if numNodes <= 0 {
		return nil, simerr.ConfigInvalid("system.num_cores", "must be positive")
	}
	if cfg.DataWidth <= 0 || cfg.HeaderFlits <= 0 {
		return nil, simerr.ConfigInvalid("network.data_width/header_flits", "must be positive")
	}

	width := ceilRoot(numNodes, dims(cfg.Type))

	return &Mesh{
		typ:         cfg.Type,
		numNodes:    numNodes,
		width:       width,
		routerDelay: cfg.RouterDelay,
		linkDelay:   cfg.LinkDelay,
		headerFlits: cfg.HeaderFlits,
		dataWidth:   cfg.DataWidth,
		injectDelay: cfg.InjectDelay,
		links:       make(map[linkKey]*link.Link),
	}, nil
}

func dims(t Type) int {
	if t == Mesh3D {
		return 3
	}
	return 2
}

// ceilRoot returns the smallest integer w such that w^d >= n.
func ceilRoot(n, d int) int {
	if n <= 1 {
		return 1
	}
	w := 1
	for pow(w, d) < n {
		w++
	}
	return w
}

func pow(base, exp int) int {
	r := 1
	for i := 0; i < exp; i++ {
		r *= base
	}
	return r
}

func (m *Mesh) coords(node int) (x, y, z int) {
	x = node % m.width
	rest := node / m.width
	y = rest % m.width
	z = rest / m.width
	return
}

func (m *Mesh) nodeOf(x, y, z int) int {
	return x + y*m.width + z*m.width*m.width
}

func (m *Mesh) getLink(node int, dir direction) *link.Link {
	key := linkKey{node: node, dir: dir}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[key]
	if !ok {
		l = link.New(m.linkDelay, queuemodel.NewHistoryModel(0))
		m.links[key] = l
	}
	return l
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}

// Transmit routes a packet from src to dst over dimension-order
// (X, then Y, then Z) routing, returning the total latency: injection
// delay (once, at the sender), router delay plus per-link contention
// for every hop, and tail pipe delay (flits-1), added once at the end.
// If src == dst it returns 0, per spec.
func (m *Mesh) Transmit(src, dst int, payloadBytes int, t int64) (int64, error) {
	if src < 0 || src >= m.numNodes || dst < 0 || dst >= m.numNodes {
		return 0, simerr.NewInvariantViolation("mesh-node-range", "src=%d dst=%d numNodes=%d", src, dst, m.numNodes)
	}
	if src == dst {
		return 0, nil
	}

	flits := m.headerFlits + ceilDiv(payloadBytes, m.dataWidth)
	service := int64(flits)

	total := m.injectDelay
	cycle := t + m.injectDelay
	hops := 0
	var routerSum, linkSum, contentionSum int64

	sx, sy, sz := m.coords(src)
	dx, dy, dz := m.coords(dst)
	cur := src

	step := func(dir direction, nx, ny, nz int) {
		l := m.getLink(cur, dir)
		d := m.routerDelay + l.Traverse(cycle, service)
		contention := d - m.routerDelay - l.PropagationDelay()
		routerSum += m.routerDelay
		linkSum += l.PropagationDelay()
		contentionSum += contention
		total += d
		cycle += d
		hops++
		cur = m.nodeOf(nx, ny, nz)
	}

	for sx != dx {
		if sx < dx {
			step(dirPlusX, sx+1, sy, sz)
			sx++
		} else {
			step(dirMinusX, sx-1, sy, sz)
			sx--
		}
	}
	for sy != dy {
		if sy < dy {
			step(dirPlusY, sx, sy+1, sz)
			sy++
		} else {
			step(dirMinusY, sx, sy-1, sz)
			sy--
		}
	}
	for m.typ == Mesh3D && sz != dz {
		if sz < dz {
			step(dirPlusZ, sx, sy, sz+1)
			sz++
		} else {
			step(dirMinusZ, sx, sy, sz-1)
			sz--
		}
	}

	total += int64(flits - 1)
	m.Stats.record(hops, routerSum, linkSum, m.injectDelay, contentionSum)

	return total, nil
}

// NumNodes returns the configured node count.
func (m *Mesh) NumNodes() int { return m.numNodes }
