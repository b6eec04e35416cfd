package analysis

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kyuchan/presentation-grader/internal/models"
)

// MemoryStore keeps records for the lifetime of the process. It is used when
// no DATABASE_URL is configured and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*models.Analysis
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]*models.Analysis), now: time.Now}
}

func (s *MemoryStore) Create(_ context.Context, a *models.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	a.CreatedAt, a.UpdatedAt = now, now
	s.records[a.ID] = clone(a)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*models.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(a), nil
}

func (s *MemoryStore) List(_ context.Context, limit, offset int) ([]models.Analysis, error) {
	limit, offset = clampLimit(limit, offset)
	s.mu.RLock()
	all := make([]*models.Analysis, 0, len(s.records))
	for _, a := range s.records {
		all = append(all, a)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	out := []models.Analysis{}
	for i := offset; i < len(all) && len(out) < limit; i++ {
		out = append(out, *clone(all[i]))
	}
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, a *models.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.records[a.ID]
	if !ok {
		return ErrNotFound
	}
	a.CreatedAt = old.CreatedAt
	a.UpdatedAt = s.now()
	s.records[a.ID] = clone(a)
	return nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id uuid.UUID, status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	a.Error = errMsg
	a.UpdatedAt = s.now()
	return nil
}

// clone deep-copies through JSON so callers never share slices or metric
// pointers with the stored record.
func clone(a *models.Analysis) *models.Analysis {
	data, err := json.Marshal(a)
	if err != nil {
		panic(err)
	}
	var out models.Analysis
	if err := json.Unmarshal(data, &out); err != nil {
		panic(err)
	}
	return &out
}
