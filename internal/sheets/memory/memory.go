package memory

import (
	"context"
	"fmt"
	"sync"

	"cariya/internal/core"
)

// Write is one donor view handed to the store.
type Write struct {
	MonthKey string
	View     core.DonorView
}

// Store keeps donor views in memory. It backs development runs without
// Google credentials and tests.
type Store struct {
	mu     sync.Mutex
	writes []Write
}

func New() *Store {
	return &Store{}
}

// WriteDonorView records the view and returns a synthetic range reference.
func (s *Store) WriteDonorView(_ context.Context, monthKey string, view core.DonorView) (string, error) {
	if _, err := core.ParseYearMonth(monthKey); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, Write{MonthKey: monthKey, View: view})
	return fmt.Sprintf("mem:%d", len(s.writes)), nil
}

// Writes returns every recorded write in order.
func (s *Store) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Write(nil), s.writes...)
}

// Last returns the most recent write.
func (s *Store) Last() (Write, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.writes) == 0 {
		return Write{}, false
	}
	return s.writes[len(s.writes)-1], true
}
