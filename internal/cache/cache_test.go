package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/credstore/internal/schema"
	"github.com/JonMunkholm/credstore/internal/storage"
)

// countingBackend counts whole-table reads.
type countingBackend struct {
	storage.Backend
	reads atomic.Int32
}

func (b *countingBackend) ReadAll(ctx context.Context, table string) ([]storage.Row, error) {
	b.reads.Add(1)
	return b.Backend.ReadAll(ctx, table)
}

var specialties = schema.Entity{
	Name:       "FacilitySpecialties",
	Table:      "Facility Specialties",
	Columns:    []string{"ID", "Facility ID", "Taxonomy ID"},
	PrimaryKey: "ID",
}

func newTestStore(t *testing.T) (*storage.Store, *countingBackend) {
	t.Helper()
	ctx := context.Background()
	b := &countingBackend{Backend: storage.NewMemoryBackend()}
	s := storage.NewStore(b, nil)
	require.NoError(t, s.EnsureTable(ctx, specialties.Table, specialties.Columns))
	for _, r := range []storage.Row{
		{"s1", "f1", "T1"},
		{"s2", "f2", "T2"},
		{"s3", "f1", "T3"},
	} {
		_, err := s.Append(ctx, specialties.Table, r)
		require.NoError(t, err)
	}
	return s, b
}

func TestRowIndex_LookupPositions(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	ri := NewRowIndex(s, nil)

	pos, ok, err := ri.Lookup(ctx, specialties.Table, 0, "s2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, pos)

	_, ok, err = ri.Lookup(ctx, specialties.Table, 0, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRowIndex_FirstOccurrenceWins(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	_, err := s.Append(ctx, specialties.Table, storage.Row{"s1", "f9", "T9"})
	require.NoError(t, err)

	ri := NewRowIndex(s, nil)
	pos, ok, err := ri.Lookup(ctx, specialties.Table, 0, "s1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, pos)
}

func TestRowIndex_BuiltOnceUntilMutation(t *testing.T) {
	ctx := context.Background()
	s, b := newTestStore(t)
	ri := NewRowIndex(s, nil)

	for i := 0; i < 3; i++ {
		_, _, err := ri.Lookup(ctx, specialties.Table, 0, "s1")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), b.reads.Load())

	_, err := s.Append(ctx, specialties.Table, storage.Row{"s4", "f3", "T4"})
	require.NoError(t, err)

	pos, ok, err := ri.Lookup(ctx, specialties.Table, 0, "s4")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5, pos)
	assert.Equal(t, int32(2), b.reads.Load())
}

func TestRowIndex_CoherentAfterEveryMutation(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	ri := NewRowIndex(s, nil)

	// warm the index
	_, err := ri.Get(ctx, specialties.Table, 0)
	require.NoError(t, err)

	_, err = s.DeleteRow(ctx, specialties.Table, 2)
	require.NoError(t, err)
	got, err := ri.Get(ctx, specialties.Table, 0)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"s2": 2, "s3": 3}, got)

	_, err = s.Append(ctx, specialties.Table, storage.Row{"s5", "f1", "T5"})
	require.NoError(t, err)
	got, err = ri.Get(ctx, specialties.Table, 0)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"s2": 2, "s3": 3, "s5": 4}, got)

	_, _, err = s.DeleteRowsWhere(ctx, specialties.Table, 1, "f1")
	require.NoError(t, err)
	got, err = ri.Get(ctx, specialties.Table, 0)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"s2": 2}, got)
}

func TestRowIndex_KeyedPerColumn(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	ri := NewRowIndex(s, nil)

	byID, err := ri.Get(ctx, specialties.Table, 0)
	require.NoError(t, err)
	byTaxonomy, err := ri.Get(ctx, specialties.Table, 2)
	require.NoError(t, err)

	assert.Equal(t, 2, byID["s1"])
	assert.Equal(t, 4, byTaxonomy["T3"])
}

func TestTableCache_HitsUntilMutation(t *testing.T) {
	ctx := context.Background()
	s, b := newTestStore(t)
	tc := NewTableCache(s, 1024*1024, time.Minute, nil)

	snap, err := tc.Snapshot(ctx, specialties)
	require.NoError(t, err)
	require.Len(t, snap.Records, 3)

	snap, err = tc.Snapshot(ctx, specialties)
	require.NoError(t, err)
	require.Len(t, snap.Records, 3)
	assert.Equal(t, "T2", snap.Records[1]["taxonomyId"])
	assert.Equal(t, int32(1), b.reads.Load())

	_, _, err = s.DeleteRowsWhere(ctx, specialties.Table, 1, "f1")
	require.NoError(t, err)

	snap, err = tc.Snapshot(ctx, specialties)
	require.NoError(t, err)
	assert.Len(t, snap.Records, 1)
	assert.Equal(t, int32(2), b.reads.Load())
}

func TestTableCache_ZeroTTLAlwaysReads(t *testing.T) {
	ctx := context.Background()
	s, b := newTestStore(t)
	tc := NewTableCache(s, 1024*1024, 0, nil)

	for i := 0; i < 3; i++ {
		_, err := tc.Snapshot(ctx, specialties)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), b.reads.Load())
}

func TestTableCache_SkipsUndecodableRows(t *testing.T) {
	ctx := context.Background()
	e := schema.Entity{
		Name:       "Requests",
		Table:      "Requests",
		Columns:    []string{"ID", "Details (JSON)"},
		PrimaryKey: "ID",
	}
	s := storage.NewStore(storage.NewMemoryBackend(), nil)
	require.NoError(t, s.EnsureTable(ctx, e.Table, e.Columns))
	_, err := s.Append(ctx, e.Table, storage.Row{"r1", `{"a":1}`})
	require.NoError(t, err)
	_, err = s.Append(ctx, e.Table, storage.Row{"r2", `{oops`})
	require.NoError(t, err)

	tc := NewTableCache(s, 1024*1024, time.Minute, nil)
	snap, err := tc.Snapshot(ctx, e)
	require.NoError(t, err)

	require.Len(t, snap.Records, 1)
	require.Len(t, snap.Skipped, 1)
	assert.Equal(t, 3, snap.Skipped[0].Position)
	assert.Equal(t, "Details (JSON)", snap.Skipped[0].Column)
}

func TestTableCache_ChunksLargeSnapshots(t *testing.T) {
	ctx := context.Background()
	s, b := newTestStore(t)
	for i := 0; i < 200; i++ {
		_, err := s.Append(ctx, specialties.Table, storage.Row{fmt.Sprintf("x%03d", i), "f7", "a-fairly-long-taxonomy-code"})
		require.NoError(t, err)
	}

	// 512KB is freecache's minimum, leaving 512 byte entries
	tc := NewTableCache(s, 512*1024, time.Minute, nil)

	first, err := tc.Snapshot(ctx, specialties)
	require.NoError(t, err)
	second, err := tc.Snapshot(ctx, specialties)
	require.NoError(t, err)

	assert.Len(t, second.Records, 203)
	assert.Equal(t, first.Records[150], second.Records[150])
	assert.Equal(t, int32(1), b.reads.Load())
}

func TestTableCache_ReturnsIndependentCopies(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	tc := NewTableCache(s, 1024*1024, time.Minute, nil)

	_, err := tc.Snapshot(ctx, specialties)
	require.NoError(t, err)
	a, err := tc.Snapshot(ctx, specialties)
	require.NoError(t, err)
	a.Records[0]["taxonomyId"] = "mutated"

	b, err := tc.Snapshot(ctx, specialties)
	require.NoError(t, err)
	assert.Equal(t, "T1", b.Records[0]["taxonomyId"])
}

func TestTableCache_StaleChunksDoNotReplaceNewerSnapshot(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	tc := NewTableCache(s, 512*1024, time.Minute, nil)
	id := s.Identity(specialties.Table)

	rows, err := s.ReadAll(ctx, specialties.Table)
	require.NoError(t, err)
	stale := decodeSnapshot(rows, specialties.Columns, s.Version(specialties.Table))

	_, err = s.WriteRow(ctx, specialties.Table, 2, storage.Row{"s1", "f1", "T9"})
	require.NoError(t, err)
	version := s.Version(specialties.Table)
	require.NotEqual(t, stale.Version, version)

	_, err = tc.Snapshot(ctx, specialties)
	require.NoError(t, err)

	// an older save finishing its chunk writes after the newer manifest landed
	_, err = tc.putChunks(id, stale)
	require.NoError(t, err)

	snap, ok := tc.load(id, version)
	require.True(t, ok)
	assert.Equal(t, "T9", snap.Records[0]["taxonomyId"])
}
