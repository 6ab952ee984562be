// Package storage abstracts a backing table as an ordered list of rows with a
// fixed column order.
//
// Backends only offer whole-table reads, append, positional read/write and
// positional delete. Row positions are 1-based and the header row is row 1.
// Store layers per-table versions and cache invalidation on top of a Backend.
package storage

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrTableNotFound  = errors.New("table not found")
	ErrRowOutOfRange  = errors.New("row position out of range")
	ErrWidthMismatch  = errors.New("row width does not match header")
	ErrHeaderMismatch = errors.New("header does not match declared columns")
)

// Row is an ordered sequence of raw cell values.
type Row []any

// Backend is the raw table contract. Implementations serialize individual
// calls only; there is no multi-call atomicity.
type Backend interface {
	// EnsureTable creates table with header if it is absent. An existing
	// table must carry exactly the same header.
	EnsureTable(ctx context.Context, table string, header []string) error
	// ReadAll returns every row, header first.
	ReadAll(ctx context.Context, table string) ([]Row, error)
	// ReadRow returns width cells of the row at position.
	ReadRow(ctx context.Context, table string, position, width int) (Row, error)
	// WriteRow overwrites the leading cells of the row at position.
	WriteRow(ctx context.Context, table string, position int, values Row) error
	// Append adds row at the end. The width must equal the header width.
	Append(ctx context.Context, table string, row Row) error
	// DeleteRow removes the row at position, shifting later rows up by one.
	DeleteRow(ctx context.Context, table string, position int) error
	// DeleteRowsWhere removes every data row whose cell at columnIndex
	// equals value and returns how many were removed.
	DeleteRowsWhere(ctx context.Context, table string, columnIndex int, value string) (int, error)
	// Identity returns the resolved physical identity of table.
	Identity(table string) string
}

// CellString renders a raw cell for comparison and key matching.
func CellString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}

// cloneRow copies r so callers never alias backend memory.
func cloneRow(r Row) Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// padRow returns r extended with empty cells up to width.
func padRow(r Row, width int) Row {
	if len(r) >= width {
		return r[:width]
	}
	out := make(Row, width)
	copy(out, r)
	for i := len(r); i < width; i++ {
		out[i] = ""
	}
	return out
}

// matchPositions collects the 1-based positions of data rows whose cell at
// columnIndex equals value, in descending order so deletes never shift a
// position that is still pending.
func matchPositions(rows []Row, columnIndex int, value string) []int {
	var positions []int
	for i := len(rows) - 1; i >= 1; i-- {
		row := rows[i]
		if columnIndex < len(row) && CellString(row[columnIndex]) == value {
			positions = append(positions, i+1)
		}
	}
	return positions
}

func headersEqual(a []string, b Row) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != CellString(b[i]) {
			return false
		}
	}
	return true
}
