package prefs

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps the preference log in process memory; tests and
// Redis-less deployments use it.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*memoryEntry
	nextSeq uint64
	systems []RatingSystem
}

type memoryEntry struct {
	pref Preference
	seq  uint64
}

// NewMemoryStore returns an empty in-memory preference store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[uuid.UUID]*memoryEntry)}
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, session uuid.UUID) (Preference, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[session]
	if !ok {
		return Preference{}, false, nil
	}
	return entry.pref, true, nil
}

// Set implements Store.
func (s *MemoryStore) Set(ctx context.Context, session uuid.UUID, pref Preference) error {
	s.mu.Lock()
	entry, existed := s.entries[session]
	if existed {
		// Edits keep the original insertion order for tie-breaking.
		entry.pref = pref
	} else {
		s.nextSeq++
		s.entries[session] = &memoryEntry{pref: pref, seq: s.nextSeq}
	}
	systems := append([]RatingSystem(nil), s.systems...)
	log := s.sortedLocked()
	s.mu.Unlock()

	if existed {
		return rebuildAll(ctx, systems, log)
	}
	for _, system := range systems {
		if err := system.Register(ctx, pref); err != nil {
			return err
		}
	}
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, session uuid.UUID) error {
	s.mu.Lock()
	delete(s.entries, session)
	systems := append([]RatingSystem(nil), s.systems...)
	log := s.sortedLocked()
	s.mu.Unlock()
	return rebuildAll(ctx, systems, log)
}

// SortedPreferences implements Store.
func (s *MemoryStore) SortedPreferences(ctx context.Context) ([]Preference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked(), nil
}

func (s *MemoryStore) sortedLocked() []Preference {
	entries := make([]*memoryEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].pref.Timestamp.Equal(entries[j].pref.Timestamp) {
			return entries[i].seq < entries[j].seq
		}
		return entries[i].pref.Timestamp.Before(entries[j].pref.Timestamp)
	})
	log := make([]Preference, len(entries))
	for i, entry := range entries {
		log[i] = entry.pref
	}
	return log
}

// AccumulationBy implements Store.
func (s *MemoryStore) AccumulationBy(ctx context.Context, email string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total float64
	for _, entry := range s.entries {
		if entry.pref.Author == email {
			total += entry.pref.Accumulation()
		}
	}
	return total, nil
}

// AllAccumulations implements Store.
func (s *MemoryStore) AllAccumulations(ctx context.Context) (map[string]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64)
	for _, entry := range s.entries {
		out[entry.pref.Author] += entry.pref.Accumulation()
	}
	return out, nil
}

// Bind implements Store.
func (s *MemoryStore) Bind(ctx context.Context, system RatingSystem) error {
	s.mu.Lock()
	s.systems = append(s.systems, system)
	log := s.sortedLocked()
	s.mu.Unlock()
	return Rebuild(ctx, system, log)
}

func rebuildAll(ctx context.Context, systems []RatingSystem, log []Preference) error {
	for _, system := range systems {
		if err := Rebuild(ctx, system, log); err != nil {
			return err
		}
	}
	return nil
}
