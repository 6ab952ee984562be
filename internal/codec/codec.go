// Package codec translates between storage rows and in-memory records.
//
// Columns are declared in Header Case ("Provider ID") and records are keyed
// by lower camel case field ids ("providerId"). A trailing "(JSON)" marker
// flags a column whose cell holds a serialized structure.
package codec

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/JonMunkholm/credstore/internal/apperr"
	"github.com/JonMunkholm/credstore/internal/schema"
	"github.com/JonMunkholm/credstore/internal/storage"
)

// Record maps field ids to decoded values.
type Record map[string]any

var markerRegex = regexp.MustCompile(`\s*\([^()]*\)\s*$`)

// ColumnToField converts a column name to its field id.
//
//	"Provider ID"    -> "providerId"
//	"Details (JSON)" -> "details"
func ColumnToField(column string) string {
	base := markerRegex.ReplaceAllString(column, "")

	var b strings.Builder
	for _, tok := range strings.Fields(base) {
		r, size := utf8.DecodeRuneInString(tok)
		b.WriteRune(unicode.ToUpper(r))
		b.WriteString(strings.ToLower(tok[size:]))
	}

	field := b.String()
	if field == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(field)
	return string(unicode.ToLower(r)) + field[size:]
}

// FieldToColumn finds the declared column of e whose field id is field.
func FieldToColumn(e schema.Entity, field string) (string, bool) {
	for _, c := range e.Columns {
		if ColumnToField(c) == field {
			return c, true
		}
	}
	return "", false
}

// IsJSONColumn reports whether column carries the JSON marker.
func IsJSONColumn(column string) bool {
	m := markerRegex.FindString(column)
	return strings.EqualFold(strings.Trim(strings.TrimSpace(m), "()"), "json")
}

// DecodeRow decodes row against columns. position is the 1-based row
// position used in decode errors. Missing trailing cells decode as "".
func DecodeRow(row storage.Row, columns []string, position int) (Record, error) {
	rec := make(Record, len(columns))
	for i, col := range columns {
		var cell any = ""
		if i < len(row) && row[i] != nil {
			cell = row[i]
		}

		if IsJSONColumn(col) {
			v, err := decodeJSON(cell)
			if err != nil {
				return nil, apperr.Decode(col, position, err)
			}
			rec[ColumnToField(col)] = v
			continue
		}
		rec[ColumnToField(col)] = cell
	}
	return rec, nil
}

// EncodeRecord encodes rec in column order. Fields absent from rec take the
// value from defaults, else the empty string.
func EncodeRecord(rec Record, columns []string, defaults Record) (storage.Row, error) {
	row := make(storage.Row, len(columns))
	for i, col := range columns {
		field := ColumnToField(col)
		v, ok := rec[field]
		if !ok {
			v, ok = defaults[field]
		}
		if !ok {
			row[i] = ""
			continue
		}
		cell, err := EncodeValue(col, v)
		if err != nil {
			return nil, err
		}
		row[i] = cell
	}
	return row, nil
}

// EncodeValue converts one field value to its storage cell.
func EncodeValue(column string, v any) (any, error) {
	if v == nil {
		return "", nil
	}
	if IsJSONColumn(column) {
		if s, ok := v.(string); ok {
			if strings.TrimSpace(s) != "" && !json.Valid([]byte(s)) {
				return nil, apperr.Invalid("column %q: value is not valid JSON", column)
			}
			return s, nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, apperr.Invalid("column %q: %v", column, err)
		}
		return string(data), nil
	}
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(time.RFC3339), nil
	case json.Number:
		return val.String(), nil
	}
	return v, nil
}

func decodeJSON(cell any) (any, error) {
	var s string
	switch v := cell.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		// already structured, e.g. a JSONB cell
		return v, nil
	}
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Fields returns the field ids of e in column order.
func Fields(e schema.Entity) []string {
	out := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		out[i] = ColumnToField(c)
	}
	return out
}

// Validate checks that every entity in r maps its columns to distinct,
// non-empty field ids and that relation keys do not shadow a column field.
func Validate(r *schema.Registry) error {
	var errs []string
	for _, e := range r.All() {
		seen := make(map[string]string, len(e.Columns))
		for _, c := range e.Columns {
			f := ColumnToField(c)
			if f == "" {
				errs = append(errs, e.Name+": column "+strconv.Quote(c)+" has no field id")
				continue
			}
			if prev, dup := seen[f]; dup {
				errs = append(errs, e.Name+": columns "+strconv.Quote(prev)+" and "+strconv.Quote(c)+" share field "+strconv.Quote(f))
			}
			seen[f] = c
		}
		for _, rel := range e.Children {
			if c, clash := seen[rel.Key]; clash {
				errs = append(errs, e.Name+": relation key "+strconv.Quote(rel.Key)+" shadows column "+strconv.Quote(c))
			}
		}
	}
	if len(errs) > 0 {
		return apperr.Invalid("invalid column manifest:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// SameCell reports whether an encoded cell equals the stored one. JSON
// columns compare by content, so key order and spacing are ignored.
func SameCell(column string, stored, encoded any) bool {
	if IsJSONColumn(column) {
		a, errA := decodeJSON(stored)
		b, errB := decodeJSON(encoded)
		if errA == nil && errB == nil {
			return String(a) == String(b)
		}
	}
	return storage.CellString(stored) == storage.CellString(encoded)
}

// String renders a decoded value for comparison and search. Structured
// values render as compact JSON.
func String(v any) string {
	switch v.(type) {
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
	return storage.CellString(v)
}
