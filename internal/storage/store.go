package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JonMunkholm/credstore/internal/apperr"
	"github.com/JonMunkholm/credstore/internal/metrics"
)

// InvalidateFunc is notified after every mutation of table, with the
// table's new version.
type InvalidateFunc func(table string, version uint64)

// Store wraps a Backend with per-table versions.
//
// Every mutating call bumps the table version and notifies invalidation
// hooks before it returns, whether or not the backend call succeeded. A
// failed call may have partially applied, so caches are dropped anyway.
type Store struct {
	backend Backend
	metrics *metrics.Metrics

	mu       sync.Mutex
	versions map[string]uint64
	hooks    []InvalidateFunc
}

// NewStore wraps backend. m may be nil.
func NewStore(backend Backend, m *metrics.Metrics) *Store {
	return &Store{
		backend:  backend,
		metrics:  m,
		versions: make(map[string]uint64),
	}
}

// OnInvalidate registers fn to run after every mutation.
func (s *Store) OnInvalidate(fn InvalidateFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Version returns the current version of table. Versions start at zero and
// only grow within a process.
func (s *Store) Version(table string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versions[s.backend.Identity(table)]
}

// Identity returns the resolved physical identity of table.
func (s *Store) Identity(table string) string {
	return s.backend.Identity(table)
}

func (s *Store) EnsureTable(ctx context.Context, table string, header []string) error {
	start := time.Now()
	err := s.backend.EnsureTable(ctx, table, header)
	s.metrics.ObserveStorage("ensure_table", start, err)
	return wrap(table, err)
}

func (s *Store) ReadAll(ctx context.Context, table string) ([]Row, error) {
	start := time.Now()
	rows, err := s.backend.ReadAll(ctx, table)
	s.metrics.ObserveStorage("read_all", start, err)
	return rows, wrap(table, err)
}

func (s *Store) ReadRow(ctx context.Context, table string, position, width int) (Row, error) {
	start := time.Now()
	row, err := s.backend.ReadRow(ctx, table, position, width)
	s.metrics.ObserveStorage("read_row", start, err)
	return row, wrap(table, err)
}

// WriteRow overwrites the row at position and returns the new table version.
func (s *Store) WriteRow(ctx context.Context, table string, position int, values Row) (uint64, error) {
	start := time.Now()
	err := s.backend.WriteRow(ctx, table, position, values)
	s.metrics.ObserveStorage("write_row", start, err)
	return s.invalidate(table), wrap(table, err)
}

// Append adds row and returns the new table version.
func (s *Store) Append(ctx context.Context, table string, row Row) (uint64, error) {
	start := time.Now()
	err := s.backend.Append(ctx, table, row)
	s.metrics.ObserveStorage("append", start, err)
	return s.invalidate(table), wrap(table, err)
}

// DeleteRow removes the row at position and returns the new table version.
func (s *Store) DeleteRow(ctx context.Context, table string, position int) (uint64, error) {
	start := time.Now()
	err := s.backend.DeleteRow(ctx, table, position)
	s.metrics.ObserveStorage("delete_row", start, err)
	return s.invalidate(table), wrap(table, err)
}

// DeleteRowsWhere removes matching rows and returns the count and the new
// table version.
func (s *Store) DeleteRowsWhere(ctx context.Context, table string, columnIndex int, value string) (int, uint64, error) {
	start := time.Now()
	n, err := s.backend.DeleteRowsWhere(ctx, table, columnIndex, value)
	s.metrics.ObserveStorage("delete_rows_where", start, err)
	return n, s.invalidate(table), wrap(table, err)
}

func (s *Store) invalidate(table string) uint64 {
	s.mu.Lock()
	id := s.backend.Identity(table)
	s.versions[id]++
	v := s.versions[id]
	hooks := make([]InvalidateFunc, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn(table, v)
	}
	return v
}

func wrap(table string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Storage(table, err)
}
