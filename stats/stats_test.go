package stats

import (
	"strings"
	"testing"

	"github.com/joeycumines/prime-uncore/coherence"
	"github.com/joeycumines/prime-uncore/directory"
	"github.com/joeycumines/prime-uncore/interconnect/mesh"
	"github.com/joeycumines/prime-uncore/simlog"
	"github.com/joeycumines/prime-uncore/trace"
	"github.com/joeycumines/prime-uncore/uncore"
	"github.com/stretchr/testify/require"
)

func testConfig() uncore.Config {
	return uncore.Config{
		NumCores: 2,
		Hierarchy: coherence.Config{
			SysType: coherence.DirectoryProtocol,
			Levels: []coherence.LevelConfig{
				{NumSets: 8, NumWays: 2, BlockSize: 64, AccessTime: 1},
				{Share: 1, NumSets: 16, NumWays: 4, BlockSize: 64, AccessTime: 8},
			},
			NumCores: 2,
			DirProto: directory.FullMap,
			Network: mesh.Config{
				Type:        mesh.Mesh2D,
				DataWidth:   8,
				HeaderFlits: 1,
				RouterDelay: 1,
				LinkDelay:   1,
			},
		},
		DRAMAccessTime: 50,
	}
}

func TestCollectReportsOnlyInstantiatedBanks(t *testing.T) {
	d, err := uncore.New(testConfig(), simlog.Nop())
	require.NoError(t, err)

	_, err = d.Access(0, 0, trace.Ref{Kind: trace.Read, Addr: 0x1000}, 0)
	require.NoError(t, err)

	snap := Collect(d)
	require.Len(t, snap.CacheLevels, 2) // one L1 bank, one L2 bank touched
	require.Equal(t, int64(1), snap.Network.AccessCount)
	require.Contains(t, snap.ThreadToCore, 0)
}

func TestSnapshotStringIncludesCoreLevels(t *testing.T) {
	d, err := uncore.New(testConfig(), simlog.Nop())
	require.NoError(t, err)
	_, err = d.Access(0, 0, trace.Ref{Kind: trace.Write, Addr: 0x2000}, 0)
	require.NoError(t, err)

	out := Collect(d).String()
	require.True(t, strings.Contains(out, "cache levels:"))
	require.True(t, strings.Contains(out, "thread to core mapping:"))
}

func TestSnapshotAppendJSONIsWellFormedBraces(t *testing.T) {
	d, err := uncore.New(testConfig(), simlog.Nop())
	require.NoError(t, err)
	_, err = d.Access(1, 0, trace.Ref{Kind: trace.Read, Addr: 0x3000}, 0)
	require.NoError(t, err)

	b := Collect(d).AppendJSON(nil)
	s := string(b)
	require.True(t, strings.HasPrefix(s, "{"))
	require.True(t, strings.HasSuffix(s, "}"))
	require.Equal(t, strings.Count(s, "{"), strings.Count(s, "}"))
}

func TestMissRateIsZeroWithNoAccesses(t *testing.T) {
	c := CacheLevelStats{}
	require.Equal(t, int64(0), c.MissRate().Num().Int64())
}
