package directory

import (
	"bytes"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/prime-uncore/membank"
	"github.com/joeycumines/prime-uncore/simlog"
	"github.com/stretchr/testify/require"
)

func TestFullMapNeverOverflows(t *testing.T) {
	d, err := New(Config{NumSets: 4, NumWays: 4, BlockSize: 64, Protocol: FullMap})
	require.NoError(t, err)

	line := d.Bank().Line(0, 0)
	for i := 0; i < 100; i++ {
		d.AddSharer(line, i)
	}
	require.Equal(t, membank.LineState(0), line.State) // never touched away from its initial I
	require.Equal(t, int64(0), d.TotalBroadcasts.Load())
}

func TestLimitedPtrDegradesToBroadcast(t *testing.T) {
	d, err := New(Config{NumSets: 4, NumWays: 4, BlockSize: 64, Protocol: LimitedPtr, MaxSharers: 2})
	require.NoError(t, err)

	line := d.Bank().Line(0, 0)
	line.State = membank.S
	d.AddSharer(line, 0)
	d.AddSharer(line, 1)
	require.Equal(t, membank.S, line.State)
	d.AddSharer(line, 2)
	require.Equal(t, membank.B, line.State)
	require.Equal(t, int64(1), d.TotalBroadcasts.Load())
}

func TestClearSharersEmptiesSet(t *testing.T) {
	d, err := New(Config{NumSets: 4, NumWays: 4, BlockSize: 64, Protocol: FullMap})
	require.NoError(t, err)

	line := d.Bank().Line(0, 0)
	d.AddSharer(line, 5)
	require.True(t, line.Sharers.Has(5))
	d.ClearSharers(line)
	require.False(t, line.Sharers.Has(5))
}

func TestHomeNodePowerOfTwoNodes(t *testing.T) {
	require.Equal(t, 0, HomeNode(0, 64, 4))
	require.Equal(t, 1, HomeNode(64, 64, 4))
	require.Equal(t, 0, HomeNode(256, 64, 4)) // 256/64=4, 4 mod 4 = 0
}

func TestHomeNodeNonPowerOfTwoNodesClamped(t *testing.T) {
	for n := 0; n < 64; n++ {
		home := HomeNode(uint64(n)*64, 64, 3)
		require.GreaterOrEqual(t, home, 0)
		require.Less(t, home, 3)
	}
}

func TestLimitedPtrDegradationLogsWarning(t *testing.T) {
	var buf bytes.Buffer
	log := simlog.New(&buf, logiface.LevelWarning)

	d, err := New(Config{NumSets: 4, NumWays: 4, BlockSize: 64, Protocol: LimitedPtr, MaxSharers: 2, Log: log})
	require.NoError(t, err)

	line := d.Bank().Line(0, 0)
	line.State = membank.S
	d.AddSharer(line, 0)
	d.AddSharer(line, 1)
	require.Empty(t, buf.String(), "no warning before the sharer cap is exceeded")
	d.AddSharer(line, 2)
	require.Contains(t, buf.String(), "directory line degraded to broadcast")
}

func TestLimitedPtrConfigRequiresMaxSharers(t *testing.T) {
	_, err := New(Config{NumSets: 4, NumWays: 4, BlockSize: 64, Protocol: LimitedPtr})
	require.Error(t, err)
}
