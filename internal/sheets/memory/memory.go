// Package memory is an in-process activity archive used when no spreadsheet
// is configured and in tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"expensedash/internal/sheets"
)

var _ sheets.ActivityWriter = (*Store)(nil)

type Store struct {
	mu   sync.Mutex
	rows []sheets.ActivityRow
	seen map[string]int
}

func New() *Store {
	return &Store{seen: make(map[string]int)}
}

// AppendActivity stores the row once per event ID. Redelivered events return
// the reference of the first append.
func (s *Store) AppendActivity(_ context.Context, row sheets.ActivityRow) (string, error) {
	if row.EventID == "" {
		return "", errors.New("activity row without event id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.seen[row.EventID]; ok {
		return ref(idx), nil
	}
	s.rows = append(s.rows, row)
	s.seen[row.EventID] = len(s.rows)
	return ref(len(s.rows)), nil
}

// Rows returns a copy of everything appended so far.
func (s *Store) Rows() []sheets.ActivityRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sheets.ActivityRow(nil), s.rows...)
}

func ref(n int) string { return fmt.Sprintf("mem:%d", n) }
