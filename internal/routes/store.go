package routes

import (
	"sync"
	"sync/atomic"
	"time"

	"hostproxy/internal/metrics"
)

// Store publishes the table in effect. Readers take one snapshot per
// request with Current; writers replace the whole table with Swap.
type Store struct {
	current atomic.Pointer[Table]

	// serializes writers so generations are strictly increasing
	mu         sync.Mutex
	generation uint64
}

func NewStore() *Store {
	return &Store{}
}

// Current returns the table in effect, never nil.
func (s *Store) Current() *Table {
	if t := s.current.Load(); t != nil {
		return t
	}
	return EmptyTable
}

// Swap stamps next with the following generation number and publishes it.
// next must not be modified afterwards. The previous table is returned.
func (s *Store) Swap(next *Table) *Table {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	next.Generation = s.generation
	if next.LoadedAt.IsZero() {
		next.LoadedAt = time.Now()
	}
	prev := s.current.Swap(next)

	metrics.RouteTableGeneration.Set(float64(next.Generation))
	metrics.RouteEntries.WithLabelValues("upstream").Set(float64(len(next.Upstreams)))
	metrics.RouteEntries.WithLabelValues("local").Set(float64(len(next.Locals)))

	if prev == nil {
		return EmptyTable
	}
	return prev
}
