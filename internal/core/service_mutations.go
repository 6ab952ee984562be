package core

import (
	"context"
	"sort"
	"strings"

	"github.com/JonMunkholm/credstore/internal/apperr"
	"github.com/JonMunkholm/credstore/internal/codec"
	"github.com/JonMunkholm/credstore/internal/logging"
	"github.com/JonMunkholm/credstore/internal/schema"
	"github.com/JonMunkholm/credstore/internal/storage"
)

// NoChangesMessage is the patch message when every field already matched.
const NoChangesMessage = "No changes detected"

// PatchResult describes the outcome of Patch.
type PatchResult struct {
	Record  codec.Record `json:"record"`
	Changed []string     `json:"changed"`
	Message string       `json:"message"`
}

// DeleteResult describes the outcome of CascadeDelete. Warnings lists
// child relations that could not be cleaned up.
type DeleteResult struct {
	ID              string         `json:"id"`
	ChildrenDeleted map[string]int `json:"childrenDeleted"`
	Warnings        []string       `json:"warnings,omitempty"`
}

// Create appends a new record for entity and returns it as stored. A
// missing primary key is generated; a supplied one must be unused.
func (s *Service) Create(ctx context.Context, entity string, data codec.Record) (codec.Record, error) {
	e, err := s.registry.Resolve(entity)
	if err != nil {
		return nil, err
	}
	actor, err := s.actor(ctx, "create")
	if err != nil {
		return nil, err
	}
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rec := make(codec.Record, len(data)+4)
	for k, v := range data {
		rec[k] = v
	}

	pkField := codec.ColumnToField(e.PrimaryKey)
	id := strings.TrimSpace(codec.String(rec[pkField]))
	if id == "" {
		id = s.ids.NewID()
	} else {
		_, exists, err := s.index.Lookup(ctx, e.Table, e.KeyIndex(), id)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, apperr.Invalid("%s %q already exists", e.Name, id)
		}
	}
	rec[pkField] = id
	s.stamp(rec, e.Stamps.CreatedAt, e.Stamps.CreatedBy, actor, false)

	row, err := codec.EncodeRecord(rec, e.Columns, s.profiles.Get(e.Name).Defaults)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Append(ctx, e.Table, row); err != nil {
		return nil, err
	}

	stored, err := codec.DecodeRow(row, e.Columns, 0)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditRequest, "Create", map[string]any{
		"entity": e.Name,
		"id":     id,
	})
	return stored, nil
}

// Patch overwrites the fields of partial that differ from the stored row.
// Unknown fields and the primary key are ignored. When nothing differs the
// row is not written and no audit event is recorded.
//
// Locate, read and write are separate storage calls; two concurrent
// patches of one row can race and the later write wins.
func (s *Service) Patch(ctx context.Context, entity, id string, partial codec.Record) (*PatchResult, error) {
	e, err := s.registry.Resolve(entity)
	if err != nil {
		return nil, err
	}
	actor, err := s.actor(ctx, "patch")
	if err != nil {
		return nil, err
	}
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	pos, row, err := s.locate(ctx, e, id)
	if err != nil {
		return nil, err
	}
	header, err := s.store.ReadRow(ctx, e.Table, 1, len(e.Columns))
	if err != nil {
		return nil, err
	}

	updated := make(storage.Row, len(header))
	copy(updated, row)

	fields := make([]string, 0, len(partial))
	for f := range partial {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	pkField := codec.ColumnToField(e.PrimaryKey)
	var changed []string
	for _, f := range fields {
		if f == pkField {
			continue
		}
		col, ok := codec.FieldToColumn(e, f)
		if !ok {
			continue
		}
		idx := headerIndex(header, col)
		if idx < 0 {
			continue
		}
		cell, err := codec.EncodeValue(col, partial[f])
		if err != nil {
			return nil, err
		}
		if codec.SameCell(col, updated[idx], cell) {
			continue
		}
		updated[idx] = cell
		changed = append(changed, f)
	}

	if len(changed) == 0 {
		rec, err := codec.DecodeRow(row, e.Columns, pos)
		if err != nil {
			return nil, err
		}
		return &PatchResult{Record: rec, Changed: []string{}, Message: NoChangesMessage}, nil
	}

	stamps := codec.Record{}
	s.stamp(stamps, e.Stamps.UpdatedAt, e.Stamps.UpdatedBy, actor, true)
	for f, v := range stamps {
		if _, supplied := partial[f]; supplied {
			continue
		}
		col, _ := codec.FieldToColumn(e, f)
		if idx := headerIndex(header, col); idx >= 0 {
			updated[idx] = v
		}
	}

	if _, err := s.store.WriteRow(ctx, e.Table, pos, updated); err != nil {
		return nil, err
	}

	rec, err := codec.DecodeRow(updated, e.Columns, pos)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditRequest, "Update", map[string]any{
		"entity":  e.Name,
		"id":      id,
		"changed": changed,
	})
	return &PatchResult{Record: rec, Changed: changed, Message: "Updated"}, nil
}

// CascadeDelete removes the record and, best effort, every child row of
// each declared relation. A failing relation is reported in Warnings and
// does not stop the others. There is no transaction: an interrupted
// cascade can leave orphaned children.
func (s *Service) CascadeDelete(ctx context.Context, entity, id string) (*DeleteResult, error) {
	e, err := s.registry.Resolve(entity)
	if err != nil {
		return nil, err
	}
	if _, err := s.actor(ctx, "delete"); err != nil {
		return nil, err
	}
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	pos, _, err := s.locate(ctx, e, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.DeleteRow(ctx, e.Table, pos); err != nil {
		return nil, err
	}

	result := &DeleteResult{ID: id, ChildrenDeleted: make(map[string]int, len(e.Children))}
	for _, rel := range e.Children {
		n, err := s.deleteChildren(ctx, rel, id)
		if err != nil {
			logging.FromContext(ctx).Warn("cascade delete: child relation failed",
				"entity", e.Name,
				"id", id,
				"relation", rel.Key,
				"error", err,
			)
			s.audit.Record(ctx, AuditWarning, "Cascade delete skipped relation", map[string]any{
				"entity":   e.Name,
				"id":       id,
				"relation": rel.Key,
				"error":    err.Error(),
			})
			result.Warnings = append(result.Warnings, rel.Key+": "+err.Error())
			continue
		}
		result.ChildrenDeleted[rel.Key] = n
	}

	s.audit.Record(ctx, AuditRequest, "Delete", map[string]any{
		"entity":   e.Name,
		"id":       id,
		"children": result.ChildrenDeleted,
	})
	return result, nil
}

func (s *Service) deleteChildren(ctx context.Context, rel schema.ChildRelation, parentID string) (int, error) {
	child, err := s.registry.Resolve(rel.ChildEntity)
	if err != nil {
		return 0, err
	}
	n, _, err := s.store.DeleteRowsWhere(ctx, child.Table, child.ColumnIndex(rel.ParentColumn), parentID)
	return n, err
}

func headerIndex(header storage.Row, column string) int {
	for i, h := range header {
		if storage.CellString(h) == column {
			return i
		}
	}
	return -1
}
