package store

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/persona-cli/internal/model"
)

// MemoryStore implements Repository in process memory. Records are cloned on
// the way in and out.
type MemoryStore struct {
	mu   sync.RWMutex
	runs []model.RunRecord // most recently upserted first
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Upsert(_ context.Context, rec *model.RunRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	cp := rec.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.RunRecord, 0, len(s.runs)+1)
	out = append(out, cp)
	for _, r := range s.runs {
		if r.ID != rec.ID {
			out = append(out, r)
		}
	}
	s.runs = out
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.runs {
		if r.ID == id {
			cp := r.Clone()
			return &cp, nil
		}
	}
	return nil, eris.Wrapf(ErrNotFound, "memory: get run %s", id)
}

func (s *MemoryStore) GetLatest(context.Context) (*model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.runs) == 0 {
		return nil, nil
	}
	cp := s.runs[0].Clone()
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context, filter RunFilter) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := listLimit(filter)
	var out []model.RunRecord
	for _, r := range s.runs {
		if filter.Subject != "" && r.Subject != filter.Subject {
			continue
		}
		out = append(out, r.Clone())
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
