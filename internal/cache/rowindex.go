// Package cache holds the process-local caches layered over storage.Store.
//
// RowIndex maps a key column's values to 1-based row positions. TableCache
// keeps short-lived decoded snapshots of whole tables. Both register with
// the Store and are dropped on every mutation of the table they cover;
// both also compare the table version on read, so an entry built before a
// write is never served after it.
package cache

import (
	"context"
	"sync"

	"github.com/JonMunkholm/credstore/internal/metrics"
	"github.com/JonMunkholm/credstore/internal/storage"
)

type indexKey struct {
	identity string
	column   int
}

type indexEntry struct {
	version   uint64
	positions map[string]int
}

// RowIndex is a lazily built key -> row position map per table and key column.
type RowIndex struct {
	store   *storage.Store
	metrics *metrics.Metrics

	mu      sync.Mutex
	entries map[indexKey]*indexEntry
}

// NewRowIndex creates an index over store and subscribes to its mutations.
func NewRowIndex(store *storage.Store, m *metrics.Metrics) *RowIndex {
	ri := &RowIndex{
		store:   store,
		metrics: m,
		entries: make(map[indexKey]*indexEntry),
	}
	store.OnInvalidate(func(table string, _ uint64) {
		ri.Invalidate(table)
	})
	return ri
}

// Lookup returns the position of the first row whose keyColumn cell equals key.
func (ri *RowIndex) Lookup(ctx context.Context, table string, keyColumn int, key string) (int, bool, error) {
	positions, err := ri.positions(ctx, table, keyColumn)
	if err != nil {
		return 0, false, err
	}
	pos, ok := positions[key]
	return pos, ok, nil
}

// Get returns a copy of the key -> position map for table.
func (ri *RowIndex) Get(ctx context.Context, table string, keyColumn int) (map[string]int, error) {
	positions, err := ri.positions(ctx, table, keyColumn)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(positions))
	for k, v := range positions {
		out[k] = v
	}
	return out, nil
}

// Invalidate drops every index built for table.
func (ri *RowIndex) Invalidate(table string) {
	id := ri.store.Identity(table)

	ri.mu.Lock()
	defer ri.mu.Unlock()
	for k := range ri.entries {
		if k.identity == id {
			delete(ri.entries, k)
		}
	}
}

func (ri *RowIndex) positions(ctx context.Context, table string, keyColumn int) (map[string]int, error) {
	key := indexKey{identity: ri.store.Identity(table), column: keyColumn}
	version := ri.store.Version(table)

	ri.mu.Lock()
	e, ok := ri.entries[key]
	ri.mu.Unlock()
	if ok && e.version == version {
		ri.metrics.CacheHit("row_index")
		return e.positions, nil
	}
	ri.metrics.CacheMiss("row_index")

	rows, err := ri.store.ReadAll(ctx, table)
	if err != nil {
		return nil, err
	}
	positions := buildPositions(rows, keyColumn)

	// A write that landed during the scan leaves the result unpublished.
	ri.mu.Lock()
	if ri.store.Version(table) == version {
		ri.entries[key] = &indexEntry{version: version, positions: positions}
	}
	ri.mu.Unlock()
	return positions, nil
}

// buildPositions skips the header; first occurrence wins on duplicate keys.
func buildPositions(rows []storage.Row, keyColumn int) map[string]int {
	positions := make(map[string]int, len(rows))
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if keyColumn >= len(row) {
			continue
		}
		k := storage.CellString(row[keyColumn])
		if _, seen := positions[k]; !seen {
			positions[k] = i + 1
		}
	}
	return positions
}
