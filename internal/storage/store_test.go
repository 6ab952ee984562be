package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/JonMunkholm/credstore/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingBackend struct {
	Backend
	failAppend bool
}

func (f *failingBackend) Append(ctx context.Context, table string, row Row) error {
	if f.failAppend {
		return errors.New("disk full")
	}
	return f.Backend.Append(ctx, table, row)
}

func TestStore_MutationsBumpVersionAndNotify(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend(), nil)
	require.NoError(t, s.EnsureTable(ctx, "T", []string{"ID", "Parent"}))

	var seen []uint64
	s.OnInvalidate(func(table string, version uint64) {
		assert.Equal(t, "T", table)
		seen = append(seen, version)
	})

	v1, err := s.Append(ctx, "T", Row{"a", "p"})
	require.NoError(t, err)
	v2, err := s.Append(ctx, "T", Row{"b", "p"})
	require.NoError(t, err)
	v3, err := s.WriteRow(ctx, "T", 2, Row{"a", "q"})
	require.NoError(t, err)
	n, v4, err := s.DeleteRowsWhere(ctx, "T", 1, "p")
	require.NoError(t, err)
	v5, err := s.DeleteRow(ctx, "T", 2)
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, []uint64{v1, v2, v3, v4, v5})
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, seen)
	assert.Equal(t, uint64(5), s.Version("T"))
}

func TestStore_InvalidatesEvenOnFailure(t *testing.T) {
	ctx := context.Background()
	fb := &failingBackend{Backend: NewMemoryBackend()}
	s := NewStore(fb, nil)
	require.NoError(t, s.EnsureTable(ctx, "T", []string{"ID"}))

	notified := false
	s.OnInvalidate(func(string, uint64) { notified = true })

	fb.failAppend = true
	_, err := s.Append(ctx, "T", Row{"a"})
	require.Error(t, err)
	assert.True(t, notified)
	assert.True(t, errors.Is(err, apperr.ErrStorage))
}

func TestStore_ReadsDoNotBumpVersion(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend(), nil)
	require.NoError(t, s.EnsureTable(ctx, "T", []string{"ID"}))

	_, err := s.ReadAll(ctx, "T")
	require.NoError(t, err)
	_, err = s.ReadRow(ctx, "T", 1, 1)
	require.NoError(t, err)

	assert.Zero(t, s.Version("T"))
}

func TestStore_WrapsBackendErrorsAsStorage(t *testing.T) {
	s := NewStore(NewMemoryBackend(), nil)
	_, err := s.ReadAll(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, apperr.KindStorage, apperr.KindOf(err))
	assert.ErrorIs(t, err, ErrTableNotFound)
}
