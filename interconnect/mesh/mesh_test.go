package mesh

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func scenarioConfig() Config {
	return Config{
		Type:        Mesh2D,
		DataWidth:   8,
		HeaderFlits: 1,
		RouterDelay: 1,
		LinkDelay:   1,
		InjectDelay: 0,
	}
}

func TestMesh_SameNodeIsFree(t *testing.T) {
	m, err := New(4, scenarioConfig())
	require.NoError(t, err)
	d, err := m.Transmit(2, 2, 8, 0)
	require.NoError(t, err)
	require.Equal(t, int64(0), d)
}

func TestMesh_AdjacentHop(t *testing.T) {
	m, err := New(4, scenarioConfig())
	require.NoError(t, err)
	// 4 nodes -> width 2, so node 0 and node 1 are adjacent in X.
	d, err := m.Transmit(0, 1, 8, 0)
	require.NoError(t, err)
	// 1 flit header + ceil(8/8)=1 payload flit = 2 flits total; tail = 1.
	// one hop: router_delay(1) + link_delay(1) = 2; inject 0; plus tail = 3.
	require.Equal(t, int64(3), d)
}

func TestMesh_InvalidNodeIsInvariantViolation(t *testing.T) {
	m, err := New(4, scenarioConfig())
	require.NoError(t, err)
	_, err = m.Transmit(0, 99, 8, 0)
	require.Error(t, err)
}

func TestMesh_StatsAccumulate(t *testing.T) {
	m, err := New(4, scenarioConfig())
	require.NoError(t, err)
	_, err = m.Transmit(0, 1, 8, 0)
	require.NoError(t, err)
	_, err = m.Transmit(0, 3, 8, 10)
	require.NoError(t, err)

	snap := m.Stats.Snapshot()
	require.Equal(t, int64(3), snap.TotalDistance) // 1 hop + 2 hops
	require.Greater(t, snap.AverageDelay(), float64(0))
}

func TestMesh_ConfigValidation(t *testing.T) {
	_, err := New(0, scenarioConfig())
	require.Error(t, err)

	cfg := scenarioConfig()
	cfg.DataWidth = 0
	_, err = New(4, cfg)
	require.Error(t, err)
}

func Test3DMesh_RoutesAllDimensions(t *testing.T) {
	cfg := scenarioConfig()
	cfg.Type = Mesh3D
	m, err := New(8, cfg) // width 2 cube
	require.NoError(t, err)
	d, err := m.Transmit(0, 7, 8, 0)
	require.NoError(t, err)
	require.Greater(t, d, int64(0))
	snap := m.Stats.Snapshot()
	require.Equal(t, int64(3), snap.TotalDistance) // corner to corner = 3 hops
}
