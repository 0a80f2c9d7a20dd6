package link

import (
	"testing"

	"github.com/joeycumines/prime-uncore/queuemodel"
	"github.com/stretchr/testify/require"
)

func TestLink_NoContention(t *testing.T) {
	l := New(3, queuemodel.NewHistoryModel(0))
	require.Equal(t, int64(3), l.Traverse(0, 2))
}

func TestLink_Contention(t *testing.T) {
	l := New(1, queuemodel.NewHistoryModel(0))
	require.Equal(t, int64(1), l.Traverse(0, 10))
	// arrives mid-transfer: propagation + queue delay
	d := l.Traverse(1, 1)
	require.Greater(t, d, int64(1))
}

func TestLink_NilModel(t *testing.T) {
	l := New(5, nil)
	require.Equal(t, int64(5), l.Traverse(100, 50))
}
