package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testTOML = `
[simulator]
max_msg_size = 4096
num_recv_threads = 2
thread_sync_interval = 0
proc_sync_interval = 0
syscall_cost = 0

[system]
sys_type = "BUS"
protocol_type = "FULL_MAP"
max_num_sharers = 0
page_size = 4096
tlb_enable = false
shared_llc = false
verbose_report = false
cpi_nonmem = 1.0
dram_access_time = 50
num_levels = 2
num_cores = 2
freq = 2.0
bus_latency = 5
page_miss_delay = 0

[network]
net_type = "MESH_2D"
data_width = 8
header_flits = 1
router_delay = 1
link_delay = 1
inject_delay = 0

[[cache_level]]
level = 0
share = 1
access_time = 1
size = 4096
block_size = 64
num_ways = 2

[[cache_level]]
level = 1
share = 2
access_time = 4
size = 8192
block_size = 64
num_ways = 4

[directory]
level = 1
share = 2
access_time = 4
size = 8192
block_size = 64
num_ways = 4

[tlb]
level = 0
share = 1
access_time = 1
size = 4096
block_size = 4096
num_ways = 1
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sim.toml")
	require.NoError(t, os.WriteFile(path, []byte(testTOML), 0o644))
	return path
}

func TestRunProducesReport(t *testing.T) {
	path := writeConfig(t)
	trace := strings.NewReader(strings.Join([]string{
		"# comment line",
		"0 0 R 0x1000 0",
		"0 0 W 0x1000 10",
		"1 0 R 0x1000 20",
		"",
	}, "\n"))

	var out, logs bytes.Buffer
	err := run([]string{"-config", path}, trace, &out, &logs)
	require.NoError(t, err)
	require.Contains(t, out.String(), "cache levels:")
	require.Contains(t, out.String(), "thread to core mapping:")
}

func TestRunRejectsMissingConfigFlag(t *testing.T) {
	err := run(nil, strings.NewReader(""), io.Discard, io.Discard)
	require.Error(t, err)
}

func TestRunRejectsMalformedTraceLine(t *testing.T) {
	path := writeConfig(t)
	trace := strings.NewReader("not a valid line\n")

	var out, logs bytes.Buffer
	err := run([]string{"-config", path}, trace, &out, &logs)
	require.Error(t, err)
}

func TestParseRefAcceptsAllKinds(t *testing.T) {
	for _, line := range []string{"0 0 R 0x10 0", "0 0 W 0x10 0", "0 0 WB 0x10 0"} {
		ref, err := parseRef(line)
		require.NoError(t, err)
		require.Equal(t, uint64(0x10), ref.Addr)
	}
}
