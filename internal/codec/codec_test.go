package codec

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/JonMunkholm/credstore/internal/apperr"
	"github.com/JonMunkholm/credstore/internal/schema"
	"github.com/JonMunkholm/credstore/internal/storage"
)

func TestColumnToField(t *testing.T) {
	tests := []struct {
		column string
		want   string
	}{
		{"Provider ID", "providerId"},
		{"ID", "id"},
		{"NPI", "npi"},
		{"First Name", "firstName"},
		{"Details (JSON)", "details"},
		{"Context (JSON)", "context"},
		{"  Owner   Email ", "ownerEmail"},
		{"Taxonomy ID", "taxonomyId"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := ColumnToField(tt.column); got != tt.want {
			t.Errorf("ColumnToField(%q) = %q, want %q", tt.column, got, tt.want)
		}
	}
}

func TestIsJSONColumn(t *testing.T) {
	tests := []struct {
		column string
		want   bool
	}{
		{"Details (JSON)", true},
		{"Details (json)", true},
		{"Details", false},
		{"Notes (free text)", false},
	}
	for _, tt := range tests {
		if got := IsJSONColumn(tt.column); got != tt.want {
			t.Errorf("IsJSONColumn(%q) = %v, want %v", tt.column, got, tt.want)
		}
	}
}

func TestFieldToColumn_RoundTripsEveryDeclaredField(t *testing.T) {
	for _, e := range schema.Default().All() {
		for _, col := range e.Columns {
			field := ColumnToField(col)
			back, ok := FieldToColumn(e, field)
			if !ok {
				t.Errorf("%s: FieldToColumn(%q) not found", e.Name, field)
				continue
			}
			if ColumnToField(back) != field {
				t.Errorf("%s: ColumnToField(FieldToColumn(%q)) = %q", e.Name, field, ColumnToField(back))
			}
			if back != col {
				t.Errorf("%s: FieldToColumn(%q) = %q, want %q", e.Name, field, back, col)
			}
		}
	}
}

func TestValidate_BuiltInManifest(t *testing.T) {
	if err := Validate(schema.Default()); err != nil {
		t.Fatalf("Validate(Default()) error = %v", err)
	}
}

func TestValidate_DetectsCollisions(t *testing.T) {
	r := schema.MustRegistry(
		schema.Entity{Name: "A", Table: "A", PrimaryKey: "ID", Columns: []string{"ID", "Owner Id", "Owner ID"}},
	)
	err := Validate(r)
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("Validate() error = %v, want invalid manifest", err)
	}
}

func TestDecodeRow(t *testing.T) {
	columns := []string{"ID", "Active", "Details (JSON)", "Notes"}
	row := storage.Row{"r1", true, `{"tags":["a","b"],"count":2}`}

	rec, err := DecodeRow(row, columns, 3)
	if err != nil {
		t.Fatalf("DecodeRow() error = %v", err)
	}

	if rec["id"] != "r1" {
		t.Errorf("id = %v, want r1", rec["id"])
	}
	if rec["active"] != true {
		t.Errorf("active = %v, want true", rec["active"])
	}
	details, ok := rec["details"].(map[string]any)
	if !ok {
		t.Fatalf("details = %T, want map", rec["details"])
	}
	if details["count"] != float64(2) {
		t.Errorf("details.count = %v, want 2", details["count"])
	}
	if rec["notes"] != "" {
		t.Errorf("missing trailing cell = %v, want empty string", rec["notes"])
	}
}

func TestDecodeRow_MalformedJSON(t *testing.T) {
	_, err := DecodeRow(storage.Row{"r1", "{broken"}, []string{"ID", "Details (JSON)"}, 9)

	var ae *apperr.Error
	if !errors.As(err, &ae) {
		t.Fatalf("DecodeRow() error = %v, want *apperr.Error", err)
	}
	if ae.Kind != apperr.KindDecode || ae.Column != "Details (JSON)" || ae.Row != 9 {
		t.Errorf("error = %+v, want decode on Details (JSON) row 9", ae)
	}
}

func TestDecodeRow_EmptyJSONCellIsNil(t *testing.T) {
	rec, err := DecodeRow(storage.Row{"r1", ""}, []string{"ID", "Details (JSON)"}, 2)
	if err != nil {
		t.Fatalf("DecodeRow() error = %v", err)
	}
	if rec["details"] != nil {
		t.Errorf("details = %v, want nil", rec["details"])
	}
}

func TestEncodeRecord_DefaultsAndJSON(t *testing.T) {
	columns := []string{"ID", "Name", "Active", "Details (JSON)", "Due Date"}
	due := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	rec := Record{
		"id":      "x1",
		"details": map[string]any{"k": "v"},
		"dueDate": due,
	}
	defaults := Record{"active": false}

	row, err := EncodeRecord(rec, columns, defaults)
	if err != nil {
		t.Fatalf("EncodeRecord() error = %v", err)
	}

	want := storage.Row{"x1", "", false, `{"k":"v"}`, "2026-03-01T09:30:00Z"}
	if !reflect.DeepEqual(row, want) {
		t.Errorf("EncodeRecord() = %#v, want %#v", row, want)
	}
}

func TestEncodeValue_JSONStrings(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"object", `{"a":1}`, false},
		{"array", `[1,2]`, false},
		{"empty", "", false},
		{"blank", "  ", false},
		{"truncated object", "{not json", true},
		{"bare word", "pending", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cell, err := EncodeValue("Details (JSON)", tt.in)
			if tt.wantErr {
				if !errors.Is(err, apperr.ErrInvalid) {
					t.Errorf("EncodeValue(%q) error = %v, want ErrInvalid", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("EncodeValue(%q) error = %v", tt.in, err)
			}
			if cell != tt.in {
				t.Errorf("EncodeValue(%q) = %v, want input unchanged", tt.in, cell)
			}
		})
	}

	if cell, err := EncodeValue("Notes", "{not json"); err != nil || cell != "{not json" {
		t.Errorf("plain column = %v, %v, want stored as is", cell, err)
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	e, _ := schema.Default().Entity(schema.Requests)
	in := Record{
		"id":         "req-1",
		"providerId": "p-1",
		"status":     "Open",
		"details":    map[string]any{"source": "portal"},
	}

	row, err := EncodeRecord(in, e.Columns, nil)
	if err != nil {
		t.Fatalf("EncodeRecord() error = %v", err)
	}
	out, err := DecodeRow(row, e.Columns, 2)
	if err != nil {
		t.Fatalf("DecodeRow() error = %v", err)
	}

	for k, v := range in {
		if !reflect.DeepEqual(out[k], v) {
			t.Errorf("field %q = %#v, want %#v", k, out[k], v)
		}
	}
	if len(out) != len(e.Columns) {
		t.Errorf("decoded %d fields, want %d", len(out), len(e.Columns))
	}
}

func TestSameCell(t *testing.T) {
	tests := []struct {
		name    string
		column  string
		stored  any
		encoded any
		want    bool
	}{
		{"equal strings", "Status", "Open", "Open", true},
		{"different strings", "Status", "Open", "Closed", false},
		{"number against string", "Priority", float64(3), "3", true},
		{"json key order", "Details (JSON)", `{"a":1,"b":2}`, `{"b":2,"a":1}`, true},
		{"json value changed", "Details (JSON)", `{"a":1}`, `{"a":2}`, false},
		{"json both empty", "Details (JSON)", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SameCell(tt.column, tt.stored, tt.encoded); got != tt.want {
				t.Errorf("SameCell(%q, %v, %v) = %v, want %v", tt.column, tt.stored, tt.encoded, got, tt.want)
			}
		})
	}
}
