package core

import (
	"context"

	"github.com/JonMunkholm/credstore/internal/apperr"
	"github.com/JonMunkholm/credstore/internal/cache"
	"github.com/JonMunkholm/credstore/internal/codec"
	"github.com/JonMunkholm/credstore/internal/logging"
	"github.com/JonMunkholm/credstore/internal/query"
	"github.com/JonMunkholm/credstore/internal/schema"
	"github.com/JonMunkholm/credstore/internal/storage"
)

// Listing is a page of records plus the rows left out because they failed
// to decode.
type Listing struct {
	query.Page
	Skipped []cache.SkippedRow `json:"skipped,omitempty"`
}

// FetchWithChildren returns the record with primary key id. Every declared
// child relation is set on the record under its key; a relation whose rows
// cannot be read is set to an empty list and reported as a warning.
func (s *Service) FetchWithChildren(ctx context.Context, entity, id string) (codec.Record, error) {
	e, err := s.registry.Resolve(entity)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.ReadAll(ctx, e.Table)
	if err != nil {
		return nil, err
	}

	keyIdx := e.KeyIndex()
	var rec codec.Record
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if keyIdx >= len(row) || storage.CellString(row[keyIdx]) != id {
			continue
		}
		rec, err = codec.DecodeRow(row, e.Columns, i+1)
		if err != nil {
			return nil, err
		}
		break
	}
	if rec == nil {
		return nil, apperr.NotFound(e.Name, id)
	}

	for _, rel := range e.Children {
		rec[rel.Key] = s.children(ctx, e, rel, id)
	}
	return rec, nil
}

// children returns the rows of rel whose parent column equals parentID.
func (s *Service) children(ctx context.Context, parent schema.Entity, rel schema.ChildRelation, parentID string) []codec.Record {
	out := []codec.Record{}

	child, err := s.registry.Resolve(rel.ChildEntity)
	var snap *cache.Snapshot
	if err == nil {
		snap, err = s.tables.Snapshot(ctx, child)
	}
	if err != nil {
		logging.FromContext(ctx).Warn("fetch children failed",
			"entity", parent.Name,
			"relation", rel.Key,
			"error", err,
		)
		s.audit.Record(ctx, AuditWarning, "Child relation unavailable", map[string]any{
			"entity":   parent.Name,
			"id":       parentID,
			"relation": rel.Key,
			"error":    err.Error(),
		})
		return out
	}

	field := codec.ColumnToField(rel.ParentColumn)
	for _, r := range snap.Records {
		if codec.String(r[field]) == parentID {
			out = append(out, r)
		}
	}
	return out
}

// List filters, searches, sorts and paginates the records of entity. The
// entity's profile supplies search fields, date fields and page size when
// opts leaves them unset.
func (s *Service) List(ctx context.Context, entity string, opts query.Options) (*Listing, error) {
	e, err := s.registry.Resolve(entity)
	if err != nil {
		return nil, err
	}

	snap, err := s.tables.Snapshot(ctx, e)
	if err != nil {
		return nil, err
	}

	prof := s.profiles.Get(e.Name)
	records := snap.Records
	if len(prof.Lookups) > 0 {
		records = s.enrich(ctx, records, prof.Lookups)
	}

	if len(opts.SearchFields) == 0 {
		opts.SearchFields = prof.SearchFields
	}
	opts.DateFields = append(append([]string{}, prof.DateFields...), opts.DateFields...)
	if opts.PageSize < 1 {
		opts.PageSize = prof.DefaultPageSize
	}

	return &Listing{
		Page:    query.List(records, opts),
		Skipped: snap.Skipped,
	}, nil
}

// enrich copies records and adds each lookup's value. A lookup whose
// entity cannot be read leaves its field unset.
func (s *Service) enrich(ctx context.Context, records []codec.Record, lookups []Lookup) []codec.Record {
	out := make([]codec.Record, len(records))
	for i, r := range records {
		c := make(codec.Record, len(r)+len(lookups))
		for k, v := range r {
			c[k] = v
		}
		out[i] = c
	}

	for _, l := range lookups {
		values, err := s.lookupValues(ctx, l)
		if err != nil {
			logging.FromContext(ctx).Warn("listing lookup failed",
				"lookup", l.As,
				"entity", l.Entity,
				"error", err,
			)
			continue
		}
		for _, r := range out {
			if v, ok := values[codec.String(r[l.Field])]; ok {
				r[l.As] = v
			}
		}
	}
	return out
}

// lookupValues maps MatchField to ValueField over the lookup entity. The
// first row wins on duplicate match values.
func (s *Service) lookupValues(ctx context.Context, l Lookup) (map[string]any, error) {
	e, err := s.registry.Resolve(l.Entity)
	if err != nil {
		return nil, err
	}
	snap, err := s.tables.Snapshot(ctx, e)
	if err != nil {
		return nil, err
	}

	values := make(map[string]any, len(snap.Records))
	for _, r := range snap.Records {
		k := codec.String(r[l.MatchField])
		if k == "" {
			continue
		}
		if _, seen := values[k]; !seen {
			values[k] = r[l.ValueField]
		}
	}
	return values, nil
}
