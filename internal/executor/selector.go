package executor

import (
	"math/rand"
	"sync"

	"github.com/nexusbridge/sequencer/internal/domain"
)

// BidSelector orders eligible bids into the candidate order the
// executor tries them in (spec §4.6 step c — "model as a strategy
// interface", §9). The current contract mandates uniform selection; a
// fee-sorted strategy is anticipated but not shipped.
type BidSelector interface {
	Select(bids []*domain.Bid) []*domain.Bid
}

// UniformRandomSelector is the shipped selector: a uniformly random
// permutation of the eligible bids, seeded once at construction.
type UniformRandomSelector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewUniformRandomSelector creates a selector seeded with seed.
func NewUniformRandomSelector(seed int64) *UniformRandomSelector {
	return &UniformRandomSelector{rng: rand.New(rand.NewSource(seed))}
}

// Select returns a new slice containing bids in random order.
func (s *UniformRandomSelector) Select(bids []*domain.Bid) []*domain.Bid {
	out := make([]*domain.Bid, len(bids))
	copy(out, bids)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}
