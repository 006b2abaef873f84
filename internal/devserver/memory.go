package devserver

import (
	"context"
	"fmt"
	"sync"

	"github.com/originfs/originfs/pkg/models"
	"github.com/originfs/originfs/pkg/protocol"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	owners map[string]map[string]*models.Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{owners: make(map[string]map[string]*models.Record)}
}

func (s *MemoryStore) Index(ctx context.Context, owner string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.owners[owner]))
	for id, rec := range s.owners[owner] {
		out[storePath(rec)] = id
	}
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, owner, id string) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.owners[owner][id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Apply(ctx context.Context, owner string, updates []protocol.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.owners[owner]
	changes, err := applyBatch(updates, func(id string) (*models.Record, bool, error) {
		rec, ok := records[id]
		if !ok {
			return nil, false, nil
		}
		return rec.Clone(), true, nil
	})
	if err != nil {
		return err
	}

	if records == nil {
		records = make(map[string]*models.Record)
		s.owners[owner] = records
	}
	for id, rec := range changes {
		if rec == nil {
			delete(records, id)
		} else {
			records[id] = rec
		}
	}
	return nil
}

// Put stores a record directly, bypassing the batch path. Used for seeding.
func (s *MemoryStore) Put(owner string, rec *models.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owners[owner] == nil {
		s.owners[owner] = make(map[string]*models.Record)
	}
	s.owners[owner][rec.ID] = rec.Clone()
}

func (s *MemoryStore) Close() error {
	return nil
}
