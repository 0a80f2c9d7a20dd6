// Package corepool implements the thread-to-core scheduler: spec
// component C9. A single coarse mutex covers the slot table, per the
// concurrency model; admission churn (rapid repeated alloc/dealloc for
// the same process, e.g. a misbehaving front-end replaying a trace)
// is rate-limited via catrate so it surfaces as one throttled log line
// rather than one line per event.
package corepool

import (
	"sync"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/prime-uncore/simerr"
)

type key struct {
	process, thread int
}

// Scheduler is a bijection between (process, thread) pairs and a fixed
// pool of core slots, first-fit allocated.
type Scheduler struct {
	mu        sync.Mutex
	occupied  []bool
	byKey     map[key]int
	slotOwner []key

	churn *catrate.Limiter
	log   *logiface.Logger[logiface.Event]
}

// New constructs a Scheduler over numSlots core slots. procSyncInterval
// and threadSyncInterval bound how often churn for the same process is
// logged (via catrate); if either interval is zero, no churn is logged.
func New(numSlots int, procSyncInterval, threadSyncInterval time.Duration, log *logiface.Logger[logiface.Event]) (*Scheduler, error) {
	if numSlots <= 0 {
		return nil, simerr.ConfigInvalid("system.num_cores", "must be positive")
	}
	s := &Scheduler{
		occupied:  make([]bool, numSlots),
		byKey:     make(map[key]int, numSlots),
		slotOwner: make([]key, numSlots),
		log:       log,
	}
	if procSyncInterval > 0 && threadSyncInterval > 0 {
		s.churn = catrate.NewLimiter(map[time.Duration]int{
			procSyncInterval:   1,
			threadSyncInterval: 4,
		})
	}
	return s, nil
}

// Alloc assigns the first unoccupied slot to (process, thread),
// returning simerr.ErrPoolExhausted if the pool is full. Re-allocating
// an already-assigned pair is idempotent and returns its existing slot.
func (s *Scheduler) Alloc(process, thread int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{process, thread}
	if slot, ok := s.byKey[k]; ok {
		return slot, nil
	}

	for slot, busy := range s.occupied {
		if !busy {
			s.occupied[slot] = true
			s.byKey[k] = slot
			s.slotOwner[slot] = k
			s.noteChurn(process, "alloc")
			return slot, nil
		}
	}

	if s.log != nil {
		s.log.Warning().Int("process", process).Int("thread", thread).Log("core pool exhausted")
	}
	return 0, simerr.ErrPoolExhausted
}

// Dealloc releases the slot held by (process, thread), reporting
// whether one was held.
func (s *Scheduler) Dealloc(process, thread int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{process, thread}
	slot, ok := s.byKey[k]
	if !ok {
		return false
	}
	delete(s.byKey, k)
	s.occupied[slot] = false
	s.slotOwner[slot] = key{}
	s.noteChurn(process, "dealloc")
	return true
}

// Lookup returns the slot assigned to (process, thread), if any.
func (s *Scheduler) Lookup(process, thread int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.byKey[key{process, thread}]
	return slot, ok
}

// Mapping returns a snapshot of slot -> (process, thread) for occupied
// slots, for report output.
func (s *Scheduler) Mapping() map[int][2]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int][2]int)
	for slot, busy := range s.occupied {
		if busy {
			k := s.slotOwner[slot]
			out[slot] = [2]int{k.process, k.thread}
		}
	}
	return out
}

func (s *Scheduler) noteChurn(process int, op string) {
	if s.churn == nil || s.log == nil {
		return
	}
	if _, ok := s.churn.Allow(process); !ok {
		return
	}
	s.log.Info().Str("op", op).Int("process", process).Log("core pool churn")
}
