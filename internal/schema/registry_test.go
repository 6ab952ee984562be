package schema

import (
	"errors"
	"strings"
	"testing"

	"github.com/JonMunkholm/credstore/internal/apperr"
)

func TestDefault_IsValid(t *testing.T) {
	r, err := NewRegistry(Credentialing()...)
	if err != nil {
		t.Fatalf("NewRegistry(Credentialing()) error = %v", err)
	}
	if got := len(r.All()); got != 8 {
		t.Errorf("len(All()) = %d, want 8", got)
	}
}

func TestRegistry_Resolve(t *testing.T) {
	r := Default()

	tests := []struct {
		input string
		want  string
	}{
		{"Facilities", Facilities},
		{"FacilitySpecialties", FacilitySpecialties},
		{"Facility Specialties", FacilitySpecialties},
		{"Audit Log", AuditLog},
	}

	for _, tt := range tests {
		e, err := r.Resolve(tt.input)
		if err != nil {
			t.Errorf("Resolve(%q) error = %v", tt.input, err)
			continue
		}
		if e.Name != tt.want {
			t.Errorf("Resolve(%q).Name = %q, want %q", tt.input, e.Name, tt.want)
		}
	}

	_, err := r.Resolve("Widgets")
	if !errors.Is(err, apperr.ErrSchemaNotFound) {
		t.Errorf("Resolve(unknown) error = %v, want SchemaNotFound", err)
	}
}

func TestRegistry_AllSortedByName(t *testing.T) {
	all := Default().All()
	for i := 1; i < len(all); i++ {
		if all[i-1].Name > all[i].Name {
			t.Fatalf("All() not sorted: %q before %q", all[i-1].Name, all[i].Name)
		}
	}
}

func TestNewRegistry_RejectsBadSchemas(t *testing.T) {
	tests := []struct {
		name     string
		entities []Entity
		wantMsg  string
	}{
		{
			name:     "missing primary key column",
			entities: []Entity{{Name: "A", Table: "A", Columns: []string{"Name"}, PrimaryKey: "ID"}},
			wantMsg:  `primary key "ID" is not a column`,
		},
		{
			name: "parent column absent on child",
			entities: []Entity{
				{Name: "P", Table: "P", Columns: []string{"ID"}, PrimaryKey: "ID",
					Children: []ChildRelation{{Key: "kids", ChildEntity: "C", ParentColumn: "Parent ID"}}},
				{Name: "C", Table: "C", Columns: []string{"ID", "Owner ID"}, PrimaryKey: "ID"},
			},
			wantMsg: `child "C" has no column "Parent ID"`,
		},
		{
			name: "undeclared child",
			entities: []Entity{
				{Name: "P", Table: "P", Columns: []string{"ID"}, PrimaryKey: "ID",
					Children: []ChildRelation{{Key: "kids", ChildEntity: "Ghost", ParentColumn: "P ID"}}},
			},
			wantMsg: `child "Ghost" is not declared`,
		},
		{
			name: "duplicate table",
			entities: []Entity{
				{Name: "A", Table: "T", Columns: []string{"ID"}, PrimaryKey: "ID"},
				{Name: "B", Table: "T", Columns: []string{"ID"}, PrimaryKey: "ID"},
			},
			wantMsg: `table "T" already backs`,
		},
		{
			name:     "stamp column missing",
			entities: []Entity{{Name: "A", Table: "A", Columns: []string{"ID"}, PrimaryKey: "ID", Stamps: Stamps{CreatedAt: "Created At"}}},
			wantMsg:  `stamp column "Created At"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.entities...)
			if err == nil {
				t.Fatal("NewRegistry() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantMsg)
			}
			if !errors.Is(err, apperr.ErrInvalid) {
				t.Errorf("error kind = %q, want invalid", apperr.KindOf(err))
			}
		})
	}
}

func TestRegistry_EntityIsACopy(t *testing.T) {
	cols := []string{"ID", "Name"}
	r := MustRegistry(Entity{Name: "A", Table: "A", Columns: cols, PrimaryKey: "ID"})
	cols[1] = "Changed"

	e, _ := r.Entity("A")
	if e.Columns[1] != "Name" {
		t.Errorf("registry columns changed after construction: %v", e.Columns)
	}
}

func TestParse_Extend(t *testing.T) {
	data := []byte(`
extend: true
entities:
  - name: Payers
    table: Payers
    primaryKey: ID
    columns: [ID, Name, Plan Codes (JSON)]
`)
	r, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if _, ok := r.Entity("Payers"); !ok {
		t.Error("Parse() missing Payers")
	}
	if _, ok := r.Entity(Providers); !ok {
		t.Error("Parse() with extend should keep built-in schemas")
	}
}

func TestParse_Standalone(t *testing.T) {
	data := []byte(`
entities:
  - name: Orders
    table: Orders
    primaryKey: Order ID
    columns: [Order ID, Customer ID]
  - name: Customers
    table: Customers
    primaryKey: ID
    columns: [ID, Name]
    children:
      - key: orders
        entity: Orders
        parentColumn: Customer ID
`)
	r, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	c, _ := r.Entity("Customers")
	if len(c.Children) != 1 || c.Children[0].ParentColumn != "Customer ID" {
		t.Errorf("Customers.Children = %+v", c.Children)
	}
	if _, ok := r.Entity(Providers); ok {
		t.Error("Parse() without extend should not include built-in schemas")
	}
}
