package corepool

import (
	"bytes"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/prime-uncore/simerr"
	"github.com/joeycumines/prime-uncore/simlog"
	"github.com/stretchr/testify/require"
)

func TestAllocFirstFit(t *testing.T) {
	s, err := New(2, 0, 0, simlog.Nop())
	require.NoError(t, err)

	slot0, err := s.Alloc(1, 1)
	require.NoError(t, err)
	require.Equal(t, 0, slot0)

	slot1, err := s.Alloc(1, 2)
	require.NoError(t, err)
	require.Equal(t, 1, slot1)

	_, err = s.Alloc(1, 3)
	require.ErrorIs(t, err, simerr.ErrPoolExhausted)
}

func TestAllocIsIdempotentForSamePair(t *testing.T) {
	s, err := New(2, 0, 0, simlog.Nop())
	require.NoError(t, err)

	a, err := s.Alloc(1, 1)
	require.NoError(t, err)
	b, err := s.Alloc(1, 1)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestDeallocFreesSlotForReuse(t *testing.T) {
	s, err := New(1, 0, 0, simlog.Nop())
	require.NoError(t, err)

	_, err = s.Alloc(1, 1)
	require.NoError(t, err)

	ok := s.Dealloc(1, 1)
	require.True(t, ok)

	slot, err := s.Alloc(2, 1)
	require.NoError(t, err)
	require.Equal(t, 0, slot)
}

func TestLookupReturnsAssignedSlot(t *testing.T) {
	s, err := New(2, 0, 0, simlog.Nop())
	require.NoError(t, err)

	_, err = s.Alloc(3, 4)
	require.NoError(t, err)

	slot, ok := s.Lookup(3, 4)
	require.True(t, ok)
	require.Equal(t, 0, slot)

	_, ok = s.Lookup(99, 99)
	require.False(t, ok)
}

func TestMappingReflectsOccupancy(t *testing.T) {
	s, err := New(2, 0, 0, simlog.Nop())
	require.NoError(t, err)

	_, err = s.Alloc(5, 6)
	require.NoError(t, err)

	m := s.Mapping()
	require.Equal(t, [2]int{5, 6}, m[0])
	require.NotContains(t, m, 1)
}

func TestNewRejectsNonPositivePoolSize(t *testing.T) {
	_, err := New(0, 0, 0, simlog.Nop())
	require.Error(t, err)
}

func TestAllocLogsWarningOnExhaustion(t *testing.T) {
	var buf bytes.Buffer
	log := simlog.New(&buf, logiface.LevelWarning)

	s, err := New(1, 0, 0, log)
	require.NoError(t, err)

	_, err = s.Alloc(1, 1)
	require.NoError(t, err)
	require.Empty(t, buf.String())

	_, err = s.Alloc(2, 1)
	require.ErrorIs(t, err, simerr.ErrPoolExhausted)
	require.Contains(t, buf.String(), "core pool exhausted")
}

func TestChurnLimiterDoesNotBlockAllocation(t *testing.T) {
	s, err := New(4, time.Millisecond, time.Millisecond, simlog.Nop())
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := s.Alloc(7, i)
		require.NoError(t, err)
	}
}
