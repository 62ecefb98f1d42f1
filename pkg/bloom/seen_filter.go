package bloom

import (
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// SeenFilter in-process prefilter for already-ingested identifiers. A negative
// answer is definitive; a positive answer may be a false positive and must be
// confirmed against the store before dropping anything.
type SeenFilter struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
}

// NewSeenFilter sizes the filter for the expected number of elements at the
// given false positive rate.
func NewSeenFilter(expected uint, fpRate float64) *SeenFilter {
	if expected == 0 {
		expected = 100000
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = 0.01
	}
	return &SeenFilter{
		filter: bloom.NewWithEstimates(expected, fpRate),
	}
}

// Key builds the canonical dedup key for a platform-scoped identifier.
func Key(platform, id string) string {
	return fmt.Sprintf("%s:%s", platform, id)
}

// MaybeSeen reports whether the key has possibly been marked before.
func (s *SeenFilter) MaybeSeen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter.TestString(key)
}

// Mark records the key.
func (s *SeenFilter) Mark(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter.AddString(key)
}

// MarkAndCheck records the key and reports whether it was possibly present
// already.
func (s *SeenFilter) MarkAndCheck(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter.TestAndAddString(key)
}
