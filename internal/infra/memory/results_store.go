package memory

import (
	"context"
	"sync"

	"live-quiz-service/internal/domain"
)

// ResultsStore keeps finished score entries in memory. Default results sink
// when no external leaderboard store is configured.
type ResultsStore struct {
	mu      sync.RWMutex
	results map[string][]domain.ScoreEntry
}

func NewResultsStore() *ResultsStore {
	return &ResultsStore{results: make(map[string][]domain.ScoreEntry)}
}

func (s *ResultsStore) SaveResults(_ context.Context, roomID string, entries []domain.ScoreEntry) error {
	stored := make([]domain.ScoreEntry, len(entries))
	copy(stored, entries)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[roomID] = stored
	return nil
}

// Results returns the stored entries for a room.
func (s *ResultsStore) Results(roomID string) []domain.ScoreEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]domain.ScoreEntry, len(s.results[roomID]))
	copy(entries, s.results[roomID])
	return entries
}
