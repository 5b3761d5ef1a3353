package storage

import (
	"context"
	"sync"

	"laneval/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	instants    map[string][]model.ManeuverInstant
	episodes    map[string][]model.EpisodeRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.instants = make(map[string][]model.ManeuverInstant)
	s.episodes = make(map[string][]model.EpisodeRecord)
	return nil
}

func (s *MemoryStore) SaveInstants(_ context.Context, dataset string, instants []model.ManeuverInstant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]model.ManeuverInstant, len(instants))
	copy(copied, instants)
	s.instants[dataset] = copied
	return nil
}

func (s *MemoryStore) GetInstants(_ context.Context, dataset string) ([]model.ManeuverInstant, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	instants, ok := s.instants[dataset]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.ManeuverInstant, len(instants))
	copy(copied, instants)
	return copied, true, nil
}

func (s *MemoryStore) SaveEpisode(_ context.Context, record model.EpisodeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.episodes[record.RunID] = append(s.episodes[record.RunID], record)
	return nil
}

func (s *MemoryStore) GetEpisodes(_ context.Context, runID string) ([]model.EpisodeRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, ok := s.episodes[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.EpisodeRecord, len(records))
	copy(copied, records)
	return copied, true, nil
}
