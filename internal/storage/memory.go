package storage

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// MemoryBackend keeps every table in process memory.
type MemoryBackend struct {
	mu     sync.RWMutex
	tables map[string][]Row
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{tables: make(map[string][]Row)}
}

func (b *MemoryBackend) EnsureTable(ctx context.Context, table string, header []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if rows, ok := b.tables[table]; ok {
		if len(rows) == 0 || !headersEqual(header, rows[0]) {
			return errors.Wrapf(ErrHeaderMismatch, "table %q", table)
		}
		return nil
	}

	h := make(Row, len(header))
	for i, c := range header {
		h[i] = c
	}
	b.tables[table] = []Row{h}
	return nil
}

func (b *MemoryBackend) ReadAll(ctx context.Context, table string) ([]Row, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rows, ok := b.tables[table]
	if !ok {
		return nil, errors.Wrapf(ErrTableNotFound, "table %q", table)
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = cloneRow(r)
	}
	return out, nil
}

func (b *MemoryBackend) ReadRow(ctx context.Context, table string, position, width int) (Row, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rows, ok := b.tables[table]
	if !ok {
		return nil, errors.Wrapf(ErrTableNotFound, "table %q", table)
	}
	if position < 1 || position > len(rows) {
		return nil, errors.Wrapf(ErrRowOutOfRange, "table %q position %d", table, position)
	}
	return padRow(cloneRow(rows[position-1]), width), nil
}

func (b *MemoryBackend) WriteRow(ctx context.Context, table string, position int, values Row) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rows, ok := b.tables[table]
	if !ok {
		return errors.Wrapf(ErrTableNotFound, "table %q", table)
	}
	if position < 1 || position > len(rows) {
		return errors.Wrapf(ErrRowOutOfRange, "table %q position %d", table, position)
	}
	row := padRow(rows[position-1], len(rows[0]))
	if len(values) > len(row) {
		return errors.Wrapf(ErrWidthMismatch, "table %q: %d values for %d columns", table, len(values), len(row))
	}
	copy(row, values)
	rows[position-1] = row
	return nil
}

func (b *MemoryBackend) Append(ctx context.Context, table string, row Row) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rows, ok := b.tables[table]
	if !ok {
		return errors.Wrapf(ErrTableNotFound, "table %q", table)
	}
	if len(row) != len(rows[0]) {
		return errors.Wrapf(ErrWidthMismatch, "table %q: got %d cells, want %d", table, len(row), len(rows[0]))
	}
	b.tables[table] = append(rows, cloneRow(row))
	return nil
}

func (b *MemoryBackend) DeleteRow(ctx context.Context, table string, position int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.deleteLocked(table, position)
}

func (b *MemoryBackend) DeleteRowsWhere(ctx context.Context, table string, columnIndex int, value string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rows, ok := b.tables[table]
	if !ok {
		return 0, errors.Wrapf(ErrTableNotFound, "table %q", table)
	}
	positions := matchPositions(rows, columnIndex, value)
	for _, pos := range positions {
		if err := b.deleteLocked(table, pos); err != nil {
			return 0, err
		}
	}
	return len(positions), nil
}

func (b *MemoryBackend) Identity(table string) string {
	return "memory:" + table
}

func (b *MemoryBackend) deleteLocked(table string, position int) error {
	rows, ok := b.tables[table]
	if !ok {
		return errors.Wrapf(ErrTableNotFound, "table %q", table)
	}
	// the header is not deletable
	if position < 2 || position > len(rows) {
		return errors.Wrapf(ErrRowOutOfRange, "table %q position %d", table, position)
	}
	b.tables[table] = append(rows[:position-1], rows[position:]...)
	return nil
}
