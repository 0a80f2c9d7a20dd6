// Package stats aggregates a run's counters into a Snapshot: per-level
// cache stats, directory/broadcast stats, network stats, the
// page-table dump, bus contention, and the thread-to-core mapping.
// Spec's report output has no format-stability contract; Snapshot's
// String is a debug dump, AppendJSON a machine-readable one.
package stats

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/joeycumines/floater"
	"github.com/joeycumines/prime-uncore/internal/jsonenc"
	"github.com/joeycumines/prime-uncore/uncore"
)

// CacheLevelStats holds one bank's counters, plus its miss rate.
type CacheLevelStats struct {
	Level     int
	BankIndex int
	Accesses  int64
	Misses    int64
	Evictions int64
	Writebacks int64
}

// MissRate returns misses/accesses as an exact rational, 0/1 if there
// were no accesses.
func (c CacheLevelStats) MissRate() *big.Rat {
	if c.Accesses == 0 {
		return big.NewRat(0, 1)
	}
	return big.NewRat(c.Misses, c.Accesses)
}

// NetworkStats mirrors mesh.Stats plus the derived average delay.
type NetworkStats struct {
	AccessCount          int64
	TotalDistance        int64
	TotalRouterDelay     int64
	TotalLinkDelay       int64
	TotalInjectDelay     int64
	TotalContentionDelay int64
	AverageDelay         float64
}

// Snapshot is a point-in-time dump of every counter the core tracks.
type Snapshot struct {
	CacheLevels      []CacheLevelStats
	TotalBroadcasts  int64
	TotalBusContention int64
	Network          NetworkStats
	PageTableFrames  uint64
	PageTableSize    int
	ThreadToCore     map[int][2]int
}

// Collect walks the hierarchy's instantiated banks and directories,
// the network, the page table (if TLB is enabled), and the scheduler,
// producing a Snapshot. Uninstantiated banks (never touched by the
// trace) are omitted, per the lazy-instantiation lifecycle.
func Collect(d *uncore.Dispatcher) Snapshot {
	var snap Snapshot
	h := d.Engine().Hierarchy()

	for level := 0; level < h.NumLevels(); level++ {
		banks := h.InstantiatedBanks(level)
		for idx, b := range banks {
			snap.CacheLevels = append(snap.CacheLevels, CacheLevelStats{
				Level:      level,
				BankIndex:  idx,
				Accesses:   b.Accesses.Load(),
				Misses:     b.Misses.Load(),
				Evictions:  b.Evictions.Load(),
				Writebacks: b.Writebacks.Load(),
			})
		}
	}
	sort.Slice(snap.CacheLevels, func(i, j int) bool {
		if snap.CacheLevels[i].Level != snap.CacheLevels[j].Level {
			return snap.CacheLevels[i].Level < snap.CacheLevels[j].Level
		}
		return snap.CacheLevels[i].BankIndex < snap.CacheLevels[j].BankIndex
	})

	for node := 0; node < h.NumTop(); node++ {
		if dir := h.InstantiatedDirectory(node); dir != nil {
			snap.TotalBroadcasts += dir.TotalBroadcasts.Load()
		}
	}
	for level := 0; level < h.NumLevels(); level++ {
		if b := h.InstantiatedBus(level); b != nil {
			snap.TotalBusContention += b.TotalContention()
		}
	}

	if net := h.Network(); net != nil {
		s := net.Stats.Snapshot()
		snap.Network = NetworkStats{
			AccessCount:          s.AccessCount,
			TotalDistance:        s.TotalDistance,
			TotalRouterDelay:     s.TotalRouterDelay,
			TotalLinkDelay:       s.TotalLinkDelay,
			TotalInjectDelay:     s.TotalInjectDelay,
			TotalContentionDelay: s.TotalContentionDelay,
			AverageDelay:         s.AverageDelay(),
		}
	}

	if t := d.PageTable(); t != nil {
		snap.PageTableFrames = t.FrameCount()
		snap.PageTableSize = t.PageSize()
	}

	snap.ThreadToCore = d.Scheduler().Mapping()
	return snap
}

// String renders a human debug dump. No format-stability contract.
func (s Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintln(&b, "cache levels:")
	for _, c := range s.CacheLevels {
		rate := floater.FormatDecimalRat(c.MissRate(), 4, 64)
		fmt.Fprintf(&b, "  L%d[%d] accesses=%d misses=%d miss_rate=%s evictions=%d writebacks=%d\n",
			c.Level, c.BankIndex, c.Accesses, c.Misses, rate, c.Evictions, c.Writebacks)
	}
	fmt.Fprintf(&b, "directory: total_broadcasts=%d\n", s.TotalBroadcasts)
	fmt.Fprintf(&b, "bus: total_contention=%d\n", s.TotalBusContention)
	fmt.Fprintf(&b, "network: accesses=%d distance=%d router_delay=%d link_delay=%d inject_delay=%d contention_delay=%d avg_delay=%s\n",
		s.Network.AccessCount, s.Network.TotalDistance, s.Network.TotalRouterDelay,
		s.Network.TotalLinkDelay, s.Network.TotalInjectDelay, s.Network.TotalContentionDelay,
		floater.FormatDecimalRat(new(big.Rat).SetFloat64(s.Network.AverageDelay), 4, 64))
	if s.PageTableSize > 0 {
		fmt.Fprintf(&b, "page table: page_size=%d frames=%d\n", s.PageTableSize, s.PageTableFrames)
	}
	fmt.Fprintln(&b, "thread to core mapping:")
	slots := make([]int, 0, len(s.ThreadToCore))
	for slot := range s.ThreadToCore {
		slots = append(slots, slot)
	}
	sort.Ints(slots)
	for _, slot := range slots {
		pt := s.ThreadToCore[slot]
		fmt.Fprintf(&b, "  core[%d] = process=%d thread=%d\n", slot, pt[0], pt[1])
	}
	return b.String()
}

// AppendJSON appends a machine-readable dump of the snapshot to dst.
func (s Snapshot) AppendJSON(dst []byte) []byte {
	dst = append(dst, '{')
	dst = append(dst, `"cache_levels":[`...)
	for i, c := range s.CacheLevels {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = append(dst, `{"level":`...)
		dst = jsonenc.AppendInt64(dst, int64(c.Level))
		dst = append(dst, `,"bank":`...)
		dst = jsonenc.AppendInt64(dst, int64(c.BankIndex))
		dst = append(dst, `,"accesses":`...)
		dst = jsonenc.AppendInt64(dst, c.Accesses)
		dst = append(dst, `,"misses":`...)
		dst = jsonenc.AppendInt64(dst, c.Misses)
		dst = append(dst, `,"evictions":`...)
		dst = jsonenc.AppendInt64(dst, c.Evictions)
		dst = append(dst, `,"writebacks":`...)
		dst = jsonenc.AppendInt64(dst, c.Writebacks)
		missRate, _ := c.MissRate().Float64()
		dst = append(dst, `,"miss_rate":`...)
		dst = jsonenc.AppendFloat64(dst, missRate)
		dst = append(dst, '}')
	}
	dst = append(dst, `],"total_broadcasts":`...)
	dst = jsonenc.AppendInt64(dst, s.TotalBroadcasts)
	dst = append(dst, `,"total_bus_contention":`...)
	dst = jsonenc.AppendInt64(dst, s.TotalBusContention)
	dst = append(dst, `,"network":{"access_count":`...)
	dst = jsonenc.AppendInt64(dst, s.Network.AccessCount)
	dst = append(dst, `,"total_distance":`...)
	dst = jsonenc.AppendInt64(dst, s.Network.TotalDistance)
	dst = append(dst, `,"average_delay":`...)
	dst = jsonenc.AppendFloat64(dst, s.Network.AverageDelay)
	dst = append(dst, '}')
	dst = append(dst, `,"page_table":{"page_size":`...)
	dst = jsonenc.AppendInt64(dst, int64(s.PageTableSize))
	dst = append(dst, `,"frames":`...)
	dst = jsonenc.AppendInt64(dst, int64(s.PageTableFrames))
	dst = append(dst, '}')
	dst = append(dst, '}')
	return dst
}
