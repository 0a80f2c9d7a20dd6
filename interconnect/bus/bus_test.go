package bus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBus_Access(t *testing.T) {
	b := New(2)
	d1 := b.Access(0)
	require.Equal(t, int64(2), d1)
	// concurrent-ish access shortly after: contention should not
	// decrease the delay relative to an uncontended access.
	d2 := b.Access(1)
	require.GreaterOrEqual(t, d2, d1)
}
