package reports

import (
	"context"
	"sync"
)

// MemoryStore keeps reports and the exclusion set in process memory. Used in
// tests and single-node deployments without Redis.
type MemoryStore struct {
	mu       sync.RWMutex
	reports  map[string][]Report
	excluded map[string]struct{}
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reports:  make(map[string][]Report),
		excluded: make(map[string]struct{}),
	}
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, teamID string) ([]Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Report(nil), s.reports[teamID]...), nil
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, teamID string, report Report) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[teamID] = append(s.reports[teamID], report)
	return len(s.reports[teamID]), nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, teamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reports, teamID)
	return nil
}

// Exclude implements Store.
func (s *MemoryStore) Exclude(ctx context.Context, teamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.excluded[teamID] = struct{}{}
	return nil
}

// Include implements Store.
func (s *MemoryStore) Include(ctx context.Context, teamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.excluded, teamID)
	return nil
}

// IsExcluded implements Store.
func (s *MemoryStore) IsExcluded(ctx context.Context, teamID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.excluded[teamID]
	return ok, nil
}

// ExcludedGames implements Store.
func (s *MemoryStore) ExcludedGames(ctx context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{}, len(s.excluded))
	for id := range s.excluded {
		out[id] = struct{}{}
	}
	return out, nil
}
