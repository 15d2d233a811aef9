package alerting

import (
	"sync"

	"github.com/couchcryptid/water-quality-service/internal/domain"
)

type seenKey struct {
	location  domain.LocationID
	parameter string
}

// LastSeen remembers the most recently evaluated value per (location, parameter).
// Entries start unknown and live for the lifetime of the owning Deduplicator.
type LastSeen struct {
	mu     sync.Mutex
	values map[seenKey]float64
}

// NewLastSeen returns an empty cache.
func NewLastSeen() *LastSeen {
	return &LastSeen{values: make(map[seenKey]float64)}
}

// Unchanged reports whether value equals the last evaluated value for the pair.
// An unknown pair is never unchanged.
func (s *LastSeen) Unchanged(loc domain.LocationID, parameter string, value float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.values[seenKey{loc, parameter}]
	return ok && prev == value
}

// Store records value as the last evaluated value for the pair.
func (s *LastSeen) Store(loc domain.LocationID, parameter string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[seenKey{loc, parameter}] = value
}

// Get returns the last evaluated value, if any.
func (s *LastSeen) Get(loc domain.LocationID, parameter string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[seenKey{loc, parameter}]
	return v, ok
}
