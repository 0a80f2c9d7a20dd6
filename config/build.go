package config

import (
	"github.com/joeycumines/prime-uncore/coherence"
	"github.com/joeycumines/prime-uncore/directory"
	"github.com/joeycumines/prime-uncore/interconnect/mesh"
	"github.com/joeycumines/prime-uncore/tlb"
	"github.com/joeycumines/prime-uncore/uncore"
)

// Build translates a validated Config into a uncore.Config ready for
// uncore.New. Call Validate (or Load/Decode, which call it already)
// first.
func (c *Config) Build() uncore.Config {
	proc, thread := c.Simulator.SyncIntervals()

	levels := make([]coherence.LevelConfig, len(c.CacheLevels))
	for i, lvl := range c.levelsByLevel() {
		levels[i] = coherence.LevelConfig{
			Share:      lvl.Share,
			NumSets:    lvl.numSets(),
			NumWays:    lvl.NumWays,
			BlockSize:  lvl.BlockSize,
			AccessTime: lvl.AccessTime,
		}
	}

	hcfg := coherence.Config{
		SysType:       sysType(c.System.SysType),
		Levels:        levels,
		NumCores:      c.System.NumCores,
		DirProto:      protocol(c.System.ProtocolType),
		MaxSharers:    c.System.MaxNumSharers,
		DirAccessTime: c.Directory.AccessTime,
		SharedLLC:     c.System.SharedLLC,
		Network: mesh.Config{
			Type:        netType(c.Network.NetType),
			DataWidth:   c.Network.DataWidth,
			HeaderFlits: c.Network.HeaderFlits,
			RouterDelay: c.Network.RouterDelay,
			LinkDelay:   c.Network.LinkDelay,
			InjectDelay: c.Network.InjectDelay,
		},
	}

	ucfg := uncore.Config{
		Hierarchy:          hcfg,
		DRAMAccessTime:     c.System.DRAMAccessTime,
		NumCores:           c.System.NumCores,
		TLBEnable:          c.System.TLBEnable,
		ProcSyncInterval:   proc,
		ThreadSyncInterval: thread,
	}
	if c.System.TLBEnable {
		ucfg.TLB = tlb.Config{
			NumSets:   c.TLB.numSets(),
			NumWays:   c.TLB.NumWays,
			PageSize:  c.System.PageSize,
			MissDelay: c.System.PageMissDelay,
		}
	}
	return ucfg
}

func sysType(s string) coherence.SysType {
	if s == "BUS" {
		return coherence.Bus
	}
	return coherence.DirectoryProtocol
}

func protocol(s string) directory.Protocol {
	if s == "LIMITED_PTR" {
		return directory.LimitedPtr
	}
	return directory.FullMap
}

func netType(s string) mesh.Type {
	if s == "MESH_3D" {
		return mesh.Mesh3D
	}
	return mesh.Mesh2D
}
