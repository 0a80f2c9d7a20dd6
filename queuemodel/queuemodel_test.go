package queuemodel

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBusyUntilModel_Sequential(t *testing.T) {
	m := NewBusyUntilModel()

	require.Equal(t, int64(0), m.ComputeQueueDelay(0, 10))
	// second request arrives before the first finishes: must wait
	require.Equal(t, int64(5), m.ComputeQueueDelay(5, 10))
	// third request arrives after the second finishes: no wait
	require.Equal(t, int64(0), m.ComputeQueueDelay(20, 1))
}

func TestHistoryModel_NonOverlapping(t *testing.T) {
	m := NewHistoryModel(0)
	require.Equal(t, int64(0), m.ComputeQueueDelay(0, 5))
	require.Equal(t, int64(0), m.ComputeQueueDelay(10, 5))
}

func TestHistoryModel_Overlapping(t *testing.T) {
	m := NewHistoryModel(0)
	require.Equal(t, int64(0), m.ComputeQueueDelay(0, 10))
	// arrives mid-service: must wait for the first to finish
	require.Equal(t, int64(5), m.ComputeQueueDelay(5, 1))
}

func TestHistoryModel_OutOfOrderArrival(t *testing.T) {
	m := NewHistoryModel(0)
	// a later request registers first...
	require.Equal(t, int64(0), m.ComputeQueueDelay(100, 10))
	// ...then an earlier one arrives and must not be perturbed by it
	require.Equal(t, int64(0), m.ComputeQueueDelay(0, 5))
}

// Delay monotonicity (testable property 5) rests on queue delay never
// being negative; this checks that under many concurrent requests.
func TestHistoryModel_DelayNeverNegative_Concurrent(t *testing.T) {
	m := NewHistoryModel(0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var delays []int64

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := m.ComputeQueueDelay(int64(i%8), 3)
			mu.Lock()
			delays = append(delays, d)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	for _, d := range delays {
		require.GreaterOrEqual(t, d, int64(0))
	}
}

func TestHistoryModel_Prune(t *testing.T) {
	m := NewHistoryModel(10)
	m.ComputeQueueDelay(0, 1)
	m.ComputeQueueDelay(1000, 1)
	m.mu.Lock()
	n := len(m.history)
	m.mu.Unlock()
	require.Equal(t, 1, n, "old interval should have been pruned")
}
