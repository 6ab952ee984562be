// Package importer bulk-creates entity records from CSV files.
//
// The first CSV row is the header. Header cells may be declared column names
// ("Provider ID") or field ids ("providerId"); unknown headers are ignored.
// Each data row becomes one createEntity call, so ids, defaults, stamps and
// audit events behave exactly as for single creates. Rows that fail are
// collected with their reason instead of aborting the import.
package importer

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/credstore/internal/apperr"
	"github.com/JonMunkholm/credstore/internal/codec"
	"github.com/JonMunkholm/credstore/internal/core"
	"github.com/JonMunkholm/credstore/internal/schema"
)

// ContextCheckInterval is how often (in rows) to check for context cancellation.
var ContextCheckInterval = 100

// Creator creates one record. *core.Operations satisfies it.
type Creator interface {
	CreateEntity(ctx context.Context, entityType string, data codec.Record) core.Result
}

// Result summarizes an import.
type Result struct {
	Entity   string   `json:"entity"`
	Imported int      `json:"imported"`
	IDs      []string `json:"ids,omitempty"`

	// Failed holds rejected rows, each prefixed with its reason. The first
	// row is the CSV header prefixed with "Status".
	Failed [][]string `json:"failed,omitempty"`
}

// HeaderIndex maps field ids to CSV column positions.
type HeaderIndex map[string]int

// MakeHeaderIndex matches a CSV header row against e's columns.
func MakeHeaderIndex(e schema.Entity, header []string) (HeaderIndex, error) {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		field, ok := matchField(e, CleanHeader(h))
		if !ok {
			continue
		}
		if prev, dup := idx[field]; dup {
			return nil, apperr.Invalid("csv columns %d and %d both map to %q", prev+1, i+1, field)
		}
		idx[field] = i
	}
	if len(idx) == 0 {
		return nil, apperr.Invalid("csv header matches no columns of %s", e.Name)
	}
	return idx, nil
}

func matchField(e schema.Entity, h string) (string, bool) {
	if h == "" {
		return "", false
	}
	if _, ok := codec.FieldToColumn(e, h); ok {
		return h, true
	}
	field := codec.ColumnToField(h)
	if _, ok := codec.FieldToColumn(e, field); ok {
		return field, true
	}
	return "", false
}

// CleanHeader strips spreadsheet artifacts from a header cell: a UTF-8 BOM,
// surrounding whitespace and a leading formula marker.
func CleanHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.TrimSpace(h)
	h = strings.TrimPrefix(h, "=")
	return strings.Trim(h, `"`)
}

// Import reads CSV from r and creates one e record per non-empty data row.
// It returns an error only when the file as a whole cannot be processed;
// the partial Result is returned alongside it.
func Import(ctx context.Context, c Creator, e schema.Entity, r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, apperr.Invalid("csv is empty")
	}
	if err != nil {
		return nil, apperr.Invalid("reading csv header: %v", err)
	}

	headerIdx, err := MakeHeaderIndex(e, header)
	if err != nil {
		return nil, err
	}

	res := &Result{Entity: e.Name}
	failed := [][]string{append([]string{"Status"}, header...)}
	defer func() {
		if len(failed) > 1 {
			res.Failed = failed
		}
	}()

	keyField := codec.ColumnToField(e.PrimaryKey)

	for i := 0; ; i++ {
		if i%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return res, fmt.Errorf("import cancelled after %d rows: %w", i, err)
			}
		}

		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, apperr.Invalid("reading csv: %v", err)
		}

		// CSV line number; blank lines are skipped by the reader
		line, _ := reader.FieldPos(0)

		if isEmpty(row) {
			continue
		}
		if len(row) > len(header) {
			failed = append(failed, rowFailed(
				fmt.Sprintf("line %d: row has %d columns, expected %d", line, len(row), len(header)),
				row,
			))
			continue
		}

		rec, err := buildRecord(e, row, headerIdx)
		if err != nil {
			failed = append(failed, rowFailed(fmt.Sprintf("line %d: %s", line, err.Error()), row))
			continue
		}

		out := c.CreateEntity(ctx, e.Name, rec)
		if !out.Success {
			failed = append(failed, rowFailed(
				fmt.Sprintf("line %d: %s (Code: %s)", line, out.Message, out.Code),
				row,
			))
			continue
		}

		res.Imported++
		if created, ok := out.Data.(codec.Record); ok {
			res.IDs = append(res.IDs, codec.String(created[keyField]))
		}
	}

	return res, nil
}

// buildRecord maps row cells to fields. Empty cells are left out so create
// defaults apply; JSON columns are parsed.
func buildRecord(e schema.Entity, row []string, headerIdx HeaderIndex) (codec.Record, error) {
	rec := make(codec.Record, len(headerIdx))
	for field, pos := range headerIdx {
		if pos >= len(row) {
			continue
		}
		raw := strings.TrimSpace(row[pos])
		if raw == "" {
			continue
		}

		col, _ := codec.FieldToColumn(e, field)
		if codec.IsJSONColumn(col) {
			var v any
			if err := json.Unmarshal([]byte(raw), &v); err != nil {
				return nil, fmt.Errorf("invalid JSON for %q: %v", col, err)
			}
			rec[field] = v
			continue
		}
		rec[field] = raw
	}
	return rec, nil
}

func isEmpty(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func rowFailed(reason string, row []string) []string {
	return append([]string{reason}, row...)
}
