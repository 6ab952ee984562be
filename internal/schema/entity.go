// Package schema declares the entities the record store manages.
//
// An Entity maps a logical record type to a physical table with a fixed,
// ordered column list. Column order must match the physical header exactly.
package schema

// ChildRelation links a parent entity to the rows of ChildEntity whose
// ParentColumn equals the parent's primary key.
type ChildRelation struct {
	Key          string `yaml:"key" json:"key"`                   // field id on the parent record
	ChildEntity  string `yaml:"entity" json:"entity"`             // child entity name
	ParentColumn string `yaml:"parentColumn" json:"parentColumn"` // column on the child table
}

// Stamps names the optional audit columns filled on create and patch.
type Stamps struct {
	CreatedAt string `yaml:"createdAt,omitempty" json:"createdAt,omitempty"`
	CreatedBy string `yaml:"createdBy,omitempty" json:"createdBy,omitempty"`
	UpdatedAt string `yaml:"updatedAt,omitempty" json:"updatedAt,omitempty"`
	UpdatedBy string `yaml:"updatedBy,omitempty" json:"updatedBy,omitempty"`
}

// Entity is the schema for one record type.
type Entity struct {
	Name       string          `yaml:"name" json:"name"`
	Table      string          `yaml:"table" json:"table"`
	Columns    []string        `yaml:"columns" json:"columns"`
	PrimaryKey string          `yaml:"primaryKey" json:"primaryKey"`
	Children   []ChildRelation `yaml:"children,omitempty" json:"children,omitempty"`
	Stamps     Stamps          `yaml:"stamps,omitempty" json:"stamps"`
}

// ColumnIndex returns the 0-based index of column, or -1.
func (e Entity) ColumnIndex(column string) int {
	for i, c := range e.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// HasColumn reports whether column is declared.
func (e Entity) HasColumn(column string) bool {
	return e.ColumnIndex(column) >= 0
}

// KeyIndex returns the 0-based index of the primary-key column.
func (e Entity) KeyIndex() int {
	return e.ColumnIndex(e.PrimaryKey)
}
