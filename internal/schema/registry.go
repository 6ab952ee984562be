package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/JonMunkholm/credstore/internal/apperr"
)

// Registry is an immutable set of entity schemas, built once at startup and
// injected into the components that need it.
type Registry struct {
	byName  map[string]Entity
	byTable map[string]string
	ordered []Entity
}

// NewRegistry validates entities and returns a registry over them.
// Every problem is reported at once.
func NewRegistry(entities ...Entity) (*Registry, error) {
	r := &Registry{
		byName:  make(map[string]Entity, len(entities)),
		byTable: make(map[string]string, len(entities)),
	}

	var errs []string
	for _, e := range entities {
		if e.Name == "" || e.Table == "" {
			errs = append(errs, fmt.Sprintf("entity %q: name and table are required", e.Name))
			continue
		}
		if _, dup := r.byName[e.Name]; dup {
			errs = append(errs, fmt.Sprintf("entity %q: declared twice", e.Name))
			continue
		}
		if owner, dup := r.byTable[e.Table]; dup {
			errs = append(errs, fmt.Sprintf("entity %q: table %q already backs %q", e.Name, e.Table, owner))
			continue
		}
		errs = append(errs, checkColumns(e)...)

		e.Columns = append([]string(nil), e.Columns...)
		e.Children = append([]ChildRelation(nil), e.Children...)
		r.byName[e.Name] = e
		r.byTable[e.Table] = e.Name
	}

	// Relations are checked once every entity is known.
	for _, e := range r.byName {
		for _, rel := range e.Children {
			child, ok := r.byName[rel.ChildEntity]
			if !ok {
				errs = append(errs, fmt.Sprintf("entity %q: child %q is not declared", e.Name, rel.ChildEntity))
				continue
			}
			if !child.HasColumn(rel.ParentColumn) {
				errs = append(errs, fmt.Sprintf("entity %q: child %q has no column %q", e.Name, rel.ChildEntity, rel.ParentColumn))
			}
			if rel.Key == "" {
				errs = append(errs, fmt.Sprintf("entity %q: relation to %q has no key", e.Name, rel.ChildEntity))
			}
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return nil, apperr.Invalid("invalid schema:\n  - %s", strings.Join(errs, "\n  - "))
	}

	r.ordered = make([]Entity, 0, len(r.byName))
	for _, e := range r.byName {
		r.ordered = append(r.ordered, e)
	}
	sort.Slice(r.ordered, func(i, j int) bool {
		return r.ordered[i].Name < r.ordered[j].Name
	})
	return r, nil
}

// MustRegistry is NewRegistry that panics on invalid input.
// Use it only for schemas fixed at compile time.
func MustRegistry(entities ...Entity) *Registry {
	r, err := NewRegistry(entities...)
	if err != nil {
		panic(err)
	}
	return r
}

func checkColumns(e Entity) []string {
	var errs []string
	if len(e.Columns) == 0 {
		return []string{fmt.Sprintf("entity %q: no columns", e.Name)}
	}
	seen := make(map[string]bool, len(e.Columns))
	for _, c := range e.Columns {
		if strings.TrimSpace(c) == "" {
			errs = append(errs, fmt.Sprintf("entity %q: blank column name", e.Name))
			continue
		}
		if seen[c] {
			errs = append(errs, fmt.Sprintf("entity %q: column %q declared twice", e.Name, c))
		}
		seen[c] = true
	}
	if e.PrimaryKey == "" || !seen[e.PrimaryKey] {
		errs = append(errs, fmt.Sprintf("entity %q: primary key %q is not a column", e.Name, e.PrimaryKey))
	}
	for _, stamp := range []string{e.Stamps.CreatedAt, e.Stamps.CreatedBy, e.Stamps.UpdatedAt, e.Stamps.UpdatedBy} {
		if stamp != "" && !seen[stamp] {
			errs = append(errs, fmt.Sprintf("entity %q: stamp column %q is not a column", e.Name, stamp))
		}
	}
	return errs
}

// Entity returns the schema named name.
func (r *Registry) Entity(name string) (Entity, bool) {
	e, ok := r.byName[name]
	return e, ok
}

// Resolve accepts an entity name or a table name.
func (r *Registry) Resolve(nameOrTable string) (Entity, error) {
	if e, ok := r.byName[nameOrTable]; ok {
		return e, nil
	}
	if name, ok := r.byTable[nameOrTable]; ok {
		return r.byName[name], nil
	}
	return Entity{}, apperr.SchemaNotFound(nameOrTable)
}

// All returns every entity sorted by name.
func (r *Registry) All() []Entity {
	out := make([]Entity, len(r.ordered))
	copy(out, r.ordered)
	return out
}
