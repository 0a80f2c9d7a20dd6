// Package config loads and validates the record tree described in
// spec.md §6 from TOML, and translates it into the construction
// parameters every other package needs: coherence.Config,
// uncore.Config, mesh.Config, tlb.Config.
package config

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joeycumines/prime-uncore/simerr"
)

// Simulator mirrors the simulator record.
type Simulator struct {
	MaxMsgSize         int   `toml:"max_msg_size"`
	NumRecvThreads     int   `toml:"num_recv_threads"`
	ThreadSyncInterval int64 `toml:"thread_sync_interval"`
	ProcSyncInterval   int64 `toml:"proc_sync_interval"`
	SyscallCost        int64 `toml:"syscall_cost"`
}

// System mirrors the system record.
type System struct {
	SysType        string  `toml:"sys_type"`
	ProtocolType   string  `toml:"protocol_type"`
	MaxNumSharers  int     `toml:"max_num_sharers"`
	PageSize       int     `toml:"page_size"`
	TLBEnable      bool    `toml:"tlb_enable"`
	SharedLLC      bool    `toml:"shared_llc"`
	VerboseReport  bool    `toml:"verbose_report"`
	CPINonMem      float64 `toml:"cpi_nonmem"`
	DRAMAccessTime int64   `toml:"dram_access_time"`
	NumLevels      int     `toml:"num_levels"`
	NumCores       int     `toml:"num_cores"`
	Freq           float64 `toml:"freq"`
	BusLatency     int64   `toml:"bus_latency"`
	PageMissDelay  int64   `toml:"page_miss_delay"`
}

// Network mirrors the network record.
type Network struct {
	NetType     string `toml:"net_type"`
	DataWidth   int    `toml:"data_width"`
	HeaderFlits int    `toml:"header_flits"`
	RouterDelay int64  `toml:"router_delay"`
	LinkDelay   int64  `toml:"link_delay"`
	InjectDelay int64  `toml:"inject_delay"`
}

// CacheRecord is the shape shared by each cache level, the directory
// cache, and the TLB cache, per spec.md §6.
type CacheRecord struct {
	Level      int   `toml:"level"`
	Share      int   `toml:"share"`
	AccessTime int64 `toml:"access_time"`
	Size       int   `toml:"size"`
	BlockSize  int   `toml:"block_size"`
	NumWays    int   `toml:"num_ways"`
}

// Config is the full parsed record tree.
type Config struct {
	Simulator   Simulator     `toml:"simulator"`
	System      System        `toml:"system"`
	Network     Network       `toml:"network"`
	CacheLevels []CacheRecord `toml:"cache_level"`
	Directory   CacheRecord   `toml:"directory"`
	TLB         CacheRecord   `toml:"tlb"`
}

// Load parses and validates a TOML config file at path.
func Load(path string) (*Config, error) {
	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, simerr.ConfigInvalid("config", err.Error())
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Decode parses and validates a TOML config from r.
func Decode(r io.Reader) (*Config, error) {
	var c Config
	if _, err := toml.NewDecoder(r).Decode(&c); err != nil {
		return nil, simerr.ConfigInvalid("config", err.Error())
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the enumerated options, the counts and sizes the core
// is built from, and each cache record's geometry, returning
// simerr.ErrConfigurationInvalid (wrapped with the offending field) on
// the first problem found. It does not detect an absent option: fields
// missing from the file decode as zero, and options it does not check
// (such as freq or cpi_nonmem) are accepted with any value.
func (c *Config) Validate() error {
	switch c.System.SysType {
	case "DIRECTORY", "BUS":
	default:
		return simerr.ConfigInvalid("system.sys_type", "must be DIRECTORY or BUS")
	}
	switch c.System.ProtocolType {
	case "FULL_MAP", "LIMITED_PTR":
	default:
		return simerr.ConfigInvalid("system.protocol_type", "must be FULL_MAP or LIMITED_PTR")
	}
	if c.System.ProtocolType == "LIMITED_PTR" && c.System.MaxNumSharers <= 0 {
		return simerr.ConfigInvalid("system.max_num_sharers", "must be positive for LIMITED_PTR")
	}
	if c.System.NumLevels <= 0 {
		return simerr.ConfigInvalid("system.num_levels", "must be positive")
	}
	if c.System.NumCores <= 0 {
		return simerr.ConfigInvalid("system.num_cores", "must be positive")
	}
	if c.System.DRAMAccessTime < 0 {
		return simerr.ConfigInvalid("system.dram_access_time", "must not be negative")
	}
	if c.System.TLBEnable && c.System.PageSize <= 0 {
		return simerr.ConfigInvalid("system.page_size", "must be positive when tlb_enable is set")
	}

	switch c.Network.NetType {
	case "MESH_2D", "MESH_3D":
	default:
		return simerr.ConfigInvalid("network.net_type", "must be MESH_2D or MESH_3D")
	}
	if c.Network.DataWidth <= 0 {
		return simerr.ConfigInvalid("network.data_width", "must be positive")
	}
	if c.Network.HeaderFlits <= 0 {
		return simerr.ConfigInvalid("network.header_flits", "must be positive")
	}

	if len(c.CacheLevels) != c.System.NumLevels {
		return simerr.ConfigInvalid("cache_level", fmt.Sprintf("expected %d entries (one per system.num_levels), got %d", c.System.NumLevels, len(c.CacheLevels)))
	}
	for _, lvl := range c.CacheLevels {
		if err := lvl.validate("cache_level"); err != nil {
			return err
		}
	}
	if err := c.Directory.validate("directory"); err != nil {
		return err
	}
	if c.System.TLBEnable {
		if err := c.TLB.validate("tlb"); err != nil {
			return err
		}
	}
	return nil
}

func (r CacheRecord) validate(field string) error {
	if r.Size <= 0 {
		return simerr.ConfigInvalid(field+".size", "must be positive")
	}
	if r.BlockSize <= 0 {
		return simerr.ConfigInvalid(field+".block_size", "must be positive")
	}
	if r.NumWays <= 0 {
		return simerr.ConfigInvalid(field+".num_ways", "must be positive")
	}
	if r.Size%(r.BlockSize*r.NumWays) != 0 {
		return simerr.ConfigInvalid(field+".size", "must divide evenly into block_size * num_ways (one set)")
	}
	return nil
}

// numSets derives the set count implied by size/block_size/num_ways.
func (r CacheRecord) numSets() int {
	return r.Size / (r.BlockSize * r.NumWays)
}

// levelsByLevel returns CacheLevels sorted by their level field, so
// index 0 is always L1 regardless of file ordering.
func (c *Config) levelsByLevel() []CacheRecord {
	out := make([]CacheRecord, len(c.CacheLevels))
	copy(out, c.CacheLevels)
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out
}

// SyncIntervals converts the simulator record's cycle-count intervals
// into the time.Duration values corepool's churn limiter keys on. The
// limiter only orders and buckets events; the unit doesn't need to be
// wall-clock time, so cycles map 1:1 onto nanoseconds.
func (s Simulator) SyncIntervals() (proc, thread time.Duration) {
	return time.Duration(s.ProcSyncInterval), time.Duration(s.ThreadSyncInterval)
}
