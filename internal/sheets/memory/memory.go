// Package memory is an in-process ledger mirror used when no spreadsheet
// is configured.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"finanzapp/internal/core"
	ports "finanzapp/internal/sheets"
)

var _ ports.LedgerMirror = (*Store)(nil)

type Store struct {
	mu    sync.Mutex
	seq   int
	items map[string]core.LedgerEntry
	order []string
}

func New() *Store {
	return &Store{items: map[string]core.LedgerEntry{}}
}

// Append stores the entry and returns a synthetic row reference.
// Appending an entry id twice replaces the row.
func (s *Store) Append(_ context.Context, e core.LedgerEntry) (string, error) {
	if e.ID == "" {
		return "", errors.New("entry without id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[e.ID]; !ok {
		s.order = append(s.order, e.ID)
	}
	s.items[e.ID] = e
	s.seq++
	return fmt.Sprintf("mem:%d", s.seq), nil
}

func (s *Store) DeleteEntry(_ context.Context, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[entryID]; !ok {
		return nil
	}
	delete(s.items, entryID)
	for i, id := range s.order {
		if id == entryID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Entries returns mirrored entries in first-append order.
func (s *Store) Entries() []core.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.LedgerEntry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}
