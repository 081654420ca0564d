package memory

import (
	"context"
	"sort"
	"sync"

	"ropa-suggestions/internal/domain/model"
	"ropa-suggestions/internal/domain/ports/repository"
)

var _ repository.DeclinedJobRepository = (*DeclinedJobStore)(nil)

// DeclinedJobStore keeps declined job ids in process memory. Entries live as
// long as the process; used in tests and as the default driver.
type DeclinedJobStore struct {
	mu   sync.RWMutex
	sets map[model.DeclinedScope]map[string]struct{}
}

func NewDeclinedJobStore() *DeclinedJobStore {
	return &DeclinedJobStore{sets: make(map[model.DeclinedScope]map[string]struct{})}
}

func (s *DeclinedJobStore) Add(ctx context.Context, scope model.DeclinedScope, jobIDs ...string) error {
	if len(jobIDs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[scope]
	if !ok {
		set = make(map[string]struct{}, len(jobIDs))
		s.sets[scope] = set
	}
	for _, id := range jobIDs {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return nil
}

// List returns the scope's ids in lexical order.
func (s *DeclinedJobStore) List(ctx context.Context, scope model.DeclinedScope) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.sets[scope]))
	for id := range s.sets[scope] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
