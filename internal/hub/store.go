package hub

import (
	"sync"

	"github.com/nfrund/lernsino/internal/domain"
)

// StatsStore keeps the last stats snapshot per username in memory.
type StatsStore struct {
	mu    sync.RWMutex
	stats map[string]domain.UserStats
}

func NewStatsStore() *StatsStore {
	return &StatsStore{stats: make(map[string]domain.UserStats)}
}

// Get returns a copy of the stored snapshot, or nil if the user has none.
func (s *StatsStore) Get(username string) domain.UserStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.stats[username]
	if !ok {
		return nil
	}
	return append(domain.UserStats(nil), stored...)
}

// Put replaces the user's snapshot.
func (s *StatsStore) Put(username string, stats domain.UserStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[username] = append(domain.UserStats(nil), stats...)
}

// Len returns the number of users with a stored snapshot.
func (s *StatsStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stats)
}
