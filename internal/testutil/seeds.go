package testutil

import "sync"

// SeedSequence hands out engine seeds 1, 2, 3, ... so built graphs are
// reproducible in tests.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SeedSequence struct {
	mu  sync.Mutex
	seq int64
}

// NewSeedSequence creates a sequence whose first Seed() is 1.
func NewSeedSequence() *SeedSequence {
	return &SeedSequence{}
}

// Seed increments and returns the next seed.
func (s *SeedSequence) Seed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// Issued returns how many seeds have been handed out.
func (s *SeedSequence) Issued() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Reset restarts the sequence. After Reset, the next Seed() returns 1.
func (s *SeedSequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = 0
}
