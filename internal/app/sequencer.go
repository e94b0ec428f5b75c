package app

import (
	"math/rand"
	"sync"
	"time"
)

// Sequencer produces the question order a player walks through.
type Sequencer interface {
	Sequence(questionIDs []int64) []int64
}

// RandomSequencer returns a uniform permutation per call.
type RandomSequencer struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewRandomSequencer() *RandomSequencer {
	return NewSeededSequencer(time.Now().UnixNano())
}

// NewSeededSequencer is deterministic for a given seed.
func NewSeededSequencer(seed int64) *RandomSequencer {
	return &RandomSequencer{rnd: rand.New(rand.NewSource(seed))}
}

func (s *RandomSequencer) Sequence(questionIDs []int64) []int64 {
	order := make([]int64, len(questionIDs))
	copy(order, questionIDs)

	s.mu.Lock()
	s.rnd.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	s.mu.Unlock()
	return order
}
