// Package memstore provides routing-memory persistence: an in-memory store
// for tests and single-process use, and a SQLite-backed store for
// durability across restarts.
package memstore

import (
	"sync"

	"github.com/petrijr/stepflow/internal/routing"
	"github.com/petrijr/stepflow/pkg/api"
)

// InMemoryStore keeps routing-memory counters in process memory.
// It is safe for concurrent use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[routing.Key]map[api.Tier]routing.TierStats
}

// Ensure InMemoryStore implements routing.Store.
var _ routing.Store = (*InMemoryStore)(nil)

// NewInMemoryStore returns an empty in-memory routing-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[routing.Key]map[api.Tier]routing.TierStats),
	}
}

func (s *InMemoryStore) GetRecommendation(key routing.Key) (*routing.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	return routing.BuildRecommendation(stats), nil
}

func (s *InMemoryStore) RecordOutcome(key routing.Key, tier api.Tier, success bool, cost, latencyMs float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats, ok := s.records[key]
	if !ok {
		// Records are created lazily and never deleted.
		stats = make(map[api.Tier]routing.TierStats)
		s.records[key] = stats
	}
	ts := stats[tier]
	ts.RunCount++
	if success {
		ts.SuccessCount++
	}
	ts.TotalCost += cost
	ts.TotalLatencyMs += latencyMs
	stats[tier] = ts
	return nil
}
