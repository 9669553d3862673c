package memory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"sync"

	ports "dailyledger/internal/sheets"
)

var _ ports.Store = (*Store)(nil)

// Store keeps the ledger sheet in process memory.
type Store struct {
	mu     sync.Mutex
	header []string
	rows   [][]string

	readErr   error
	appendErr error
	reads     int
}

// New creates a store with the given header and no data rows.
func New(header []string) *Store {
	return &Store{header: append([]string(nil), header...)}
}

// NewFromCSV seeds a store from a CSV export of the sheet. A missing file
// yields a store with the fallback header.
func NewFromCSV(path string, fallback []string) (*Store, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(fallback), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open seed %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	if len(records) == 0 {
		return New(fallback), nil
	}
	s := New(records[0])
	s.rows = records[1:]
	return s, nil
}

// ReadAll returns a copy of the header and every row.
func (s *Store) ReadAll(_ context.Context) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.readErr != nil {
		return nil, s.readErr
	}
	out := make([][]string, 0, len(s.rows)+1)
	out = append(out, append([]string(nil), s.header...))
	for _, r := range s.rows {
		out = append(out, append([]string(nil), r...))
	}
	return out, nil
}

// AppendRow stores cells and returns a synthetic row reference.
func (s *Store) AppendRow(_ context.Context, cells []any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return "", s.appendErr
	}
	s.rows = append(s.rows, ports.Cells(cells))
	// Header is row 1.
	return fmt.Sprintf("mem:%d", len(s.rows)+1), nil
}

// FailReads makes every following read return err; nil restores reads.
func (s *Store) FailReads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

// FailAppends makes every following append return err; nil restores appends.
func (s *Store) FailAppends(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendErr = err
}

// Reads reports how many times ReadAll was called.
func (s *Store) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Len returns the number of data rows.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}
