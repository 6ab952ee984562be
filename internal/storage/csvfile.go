package storage

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// CSVBackend stores each table as <dir>/<table>.csv. Every mutation rewrites
// the whole file through a temp file and rename.
type CSVBackend struct {
	dir string
	mu  sync.Mutex
}

// NewCSVBackend creates dir if needed and returns a backend rooted there.
func NewCSVBackend(dir string) (*CSVBackend, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrap(err, "resolve storage dir")
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.Wrap(err, "create storage dir")
	}
	return &CSVBackend{dir: abs}, nil
}

func (b *CSVBackend) path(table string) string {
	name := strings.ReplaceAll(table, string(filepath.Separator), "_")
	return filepath.Join(b.dir, name+".csv")
}

func (b *CSVBackend) EnsureTable(ctx context.Context, table string, header []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rows, err := b.load(table)
	if err == nil {
		if len(rows) == 0 || !headersEqual(header, rows[0]) {
			return errors.Wrapf(ErrHeaderMismatch, "table %q", table)
		}
		return nil
	}
	if !errors.Is(err, ErrTableNotFound) {
		return err
	}

	h := make(Row, len(header))
	for i, c := range header {
		h[i] = c
	}
	return b.save(table, []Row{h})
}

func (b *CSVBackend) ReadAll(ctx context.Context, table string) ([]Row, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.load(table)
}

func (b *CSVBackend) ReadRow(ctx context.Context, table string, position, width int) (Row, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rows, err := b.load(table)
	if err != nil {
		return nil, err
	}
	if position < 1 || position > len(rows) {
		return nil, errors.Wrapf(ErrRowOutOfRange, "table %q position %d", table, position)
	}
	return padRow(rows[position-1], width), nil
}

func (b *CSVBackend) WriteRow(ctx context.Context, table string, position int, values Row) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rows, err := b.load(table)
	if err != nil {
		return err
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
	return b.save(table, rows)
}

func (b *CSVBackend) Append(ctx context.Context, table string, row Row) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rows, err := b.load(table)
	if err != nil {
		return err
	}
	if len(row) != len(rows[0]) {
		return errors.Wrapf(ErrWidthMismatch, "table %q: got %d cells, want %d", table, len(row), len(rows[0]))
	}
	return b.save(table, append(rows, row))
}

func (b *CSVBackend) DeleteRow(ctx context.Context, table string, position int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rows, err := b.load(table)
	if err != nil {
		return err
	}
	if position < 2 || position > len(rows) {
		return errors.Wrapf(ErrRowOutOfRange, "table %q position %d", table, position)
	}
	return b.save(table, append(rows[:position-1], rows[position:]...))
}

func (b *CSVBackend) DeleteRowsWhere(ctx context.Context, table string, columnIndex int, value string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rows, err := b.load(table)
	if err != nil {
		return 0, err
	}
	positions := matchPositions(rows, columnIndex, value)
	if len(positions) == 0 {
		return 0, nil
	}
	for _, pos := range positions {
		rows = append(rows[:pos-1], rows[pos:]...)
	}
	if err := b.save(table, rows); err != nil {
		return 0, err
	}
	return len(positions), nil
}

func (b *CSVBackend) Identity(table string) string {
	return b.path(table)
}

func (b *CSVBackend) load(table string) ([]Row, error) {
	f, err := os.Open(b.path(table))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrTableNotFound, "table %q", table)
		}
		return nil, errors.Wrapf(err, "open table %q", table)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "parse table %q", table)
	}

	rows := make([]Row, len(records))
	for i, rec := range records {
		row := make(Row, len(rec))
		for j, cell := range rec {
			row[j] = cell
		}
		rows[i] = row
	}
	return rows, nil
}

func (b *CSVBackend) save(table string, rows []Row) error {
	target := b.path(table)
	tmp, err := os.CreateTemp(b.dir, ".tmp-*.csv")
	if err != nil {
		return errors.Wrapf(err, "write table %q", table)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	for _, row := range rows {
		rec := make([]string, len(row))
		for i, cell := range row {
			rec[i] = CellString(cell)
		}
		if err := w.Write(rec); err != nil {
			tmp.Close()
			return errors.Wrapf(err, "write table %q", table)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "flush table %q", table)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close table %q", table)
	}
	return errors.Wrapf(os.Rename(tmp.Name(), target), "replace table %q", table)
}
