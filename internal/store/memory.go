package store

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/sells-group/rooftop-cli/internal/stats"
)

// MemoryStore keeps results in process. Dry runs and tests use it.
type MemoryStore struct {
	mu   sync.RWMutex
	rows []stats.MunicipalityStats
}

// NewMemory returns an empty store.
func NewMemory() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) ReplaceAll(_ context.Context, all []stats.MunicipalityStats) error {
	if err := checkUnique(all); err != nil {
		return err
	}
	rows := slices.Clone(all)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Code < rows[j].Code })

	s.mu.Lock()
	s.rows = rows
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(context.Context) ([]stats.MunicipalityStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.rows), nil
}

func (s *MemoryStore) RollupByRegion(ctx context.Context) ([]stats.RegionalRollup, error) {
	rows, _ := s.List(ctx)
	return stats.Rollup(rows), nil
}
