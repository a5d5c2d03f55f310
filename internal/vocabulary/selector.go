package vocabulary

import (
	"math/rand"
	"sync"
	"time"
)

// Selector picks entries uniformly at random. It is safe for concurrent use.
type Selector struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSelector returns a Selector seeded from the clock.
func NewSelector() *Selector {
	return NewSeededSelector(time.Now().UnixNano())
}

// NewSeededSelector returns a deterministic Selector.
func NewSeededSelector(seed int64) *Selector {
	return &Selector{rnd: rand.New(rand.NewSource(seed))}
}

// Pick returns one entry chosen uniformly from entries.
func (s *Selector) Pick(entries []Entry) (Entry, error) {
	if len(entries) == 0 {
		return Entry{}, ErrEmptyVocabulary
	}
	if len(entries) == 1 {
		return entries[0], nil
	}
	s.mu.Lock()
	i := s.rnd.Intn(len(entries))
	s.mu.Unlock()
	return entries[i], nil
}
