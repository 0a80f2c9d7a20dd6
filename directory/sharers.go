package directory

import "github.com/joeycumines/prime-uncore/membank"

// fullMap is the FULL_MAP sharer-set variant: one bit per bank, no
// overflow possible.
type fullMap struct {
	bits map[int]struct{}
}

func newFullMap() *fullMap {
	return &fullMap{bits: make(map[int]struct{})}
}

func (s *fullMap) Add(bankID int) bool {
	s.bits[bankID] = struct{}{}
	return false
}

func (s *fullMap) Remove(bankID int) { delete(s.bits, bankID) }
func (s *fullMap) Has(bankID int) bool {
	_, ok := s.bits[bankID]
	return ok
}
func (s *fullMap) Len() int { return len(s.bits) }
func (s *fullMap) Clear() {
	for k := range s.bits {
		delete(s.bits, k)
	}
}
func (s *fullMap) ForEach(f func(bankID int)) {
	for k := range s.bits {
		f(k)
	}
}

// limitedPtr is the LIMITED_PTR variant: tracks up to maxSharers
// explicit pointers; Add reports overflow (the caller degrades the
// line to state B) once that limit would be exceeded, rather than
// silently dropping a sharer.
type limitedPtr struct {
	max      int
	sharers  map[int]struct{}
	overflow bool
}

func newLimitedPtr(max int) *limitedPtr {
	return &limitedPtr{max: max, sharers: make(map[int]struct{})}
}

func (s *limitedPtr) Add(bankID int) (overflowed bool) {
	if _, ok := s.sharers[bankID]; ok {
		return s.overflow
	}
	if len(s.sharers) >= s.max {
		s.overflow = true
		return true
	}
	s.sharers[bankID] = struct{}{}
	return s.overflow
}

func (s *limitedPtr) Remove(bankID int) { delete(s.sharers, bankID) }
func (s *limitedPtr) Has(bankID int) bool {
	if s.overflow {
		return true
	}
	_, ok := s.sharers[bankID]
	return ok
}
func (s *limitedPtr) Len() int { return len(s.sharers) }
func (s *limitedPtr) Clear() {
	for k := range s.sharers {
		delete(s.sharers, k)
	}
	s.overflow = false
}
func (s *limitedPtr) ForEach(f func(bankID int)) {
	for k := range s.sharers {
		f(k)
	}
}

var (
	_ membank.SharerSet = (*fullMap)(nil)
	_ membank.SharerSet = (*limitedPtr)(nil)
)
