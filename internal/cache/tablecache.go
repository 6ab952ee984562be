package cache

import (
	"bytes"
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/coocood/freecache"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/JonMunkholm/credstore/internal/apperr"
	"github.com/JonMunkholm/credstore/internal/codec"
	"github.com/JonMunkholm/credstore/internal/metrics"
	"github.com/JonMunkholm/credstore/internal/schema"
	"github.com/JonMunkholm/credstore/internal/storage"
)

// SkippedRow records a row left out of a snapshot because it failed to decode.
type SkippedRow struct {
	Position int    `msgpack:"p" json:"position"`
	Column   string `msgpack:"c" json:"column"`
	Reason   string `msgpack:"r" json:"reason"`
}

// Snapshot is a decoded copy of a whole table at Version.
type Snapshot struct {
	Version uint64         `msgpack:"v"`
	Records []codec.Record `msgpack:"r"`
	Skipped []SkippedRow   `msgpack:"s"`
}

type manifest struct {
	Version uint64 `msgpack:"v"`
	Chunks  int    `msgpack:"c"`
}

// TableCache keeps msgpack-encoded snapshots in a freecache ring buffer.
//
// freecache refuses entries above 1/1024 of its size, so a snapshot is split
// into chunks under that limit plus a manifest entry carrying the version.
type TableCache struct {
	store   *storage.Store
	cache   *freecache.Cache
	ttl     time.Duration
	chunk   int
	metrics *metrics.Metrics
}

// NewTableCache creates a cache of size bytes whose entries expire after
// ttl. A ttl of zero disables caching; every call reads the table.
func NewTableCache(store *storage.Store, size int, ttl time.Duration, m *metrics.Metrics) *TableCache {
	c := &TableCache{
		store:   store,
		cache:   freecache.NewCache(size),
		ttl:     ttl,
		chunk:   size / 1024,
		metrics: m,
	}
	store.OnInvalidate(func(table string, _ uint64) {
		c.Invalidate(table)
	})
	return c
}

// Snapshot returns the decoded rows of e's table. Rows that fail to decode
// are reported in Skipped instead of failing the whole read.
func (c *TableCache) Snapshot(ctx context.Context, e schema.Entity) (*Snapshot, error) {
	id := c.store.Identity(e.Table)
	version := c.store.Version(e.Table)

	if c.ttl > 0 {
		if snap, ok := c.load(id, version); ok {
			c.metrics.CacheHit("table")
			return snap, nil
		}
	}
	c.metrics.CacheMiss("table")

	rows, err := c.store.ReadAll(ctx, e.Table)
	if err != nil {
		return nil, err
	}
	snap := decodeSnapshot(rows, e.Columns, version)

	if c.ttl > 0 && c.store.Version(e.Table) == version {
		if err := c.save(id, snap); err != nil {
			slog.Debug("table cache: snapshot not stored", "table", e.Table, "error", err)
		}
	}
	return snap, nil
}

// Invalidate drops the snapshot of table.
func (c *TableCache) Invalidate(table string) {
	c.cache.Del(manifestKey(c.store.Identity(table)))
}

func decodeSnapshot(rows []storage.Row, columns []string, version uint64) *Snapshot {
	snap := &Snapshot{Version: version, Records: make([]codec.Record, 0, len(rows))}
	for i := 1; i < len(rows); i++ {
		rec, err := codec.DecodeRow(rows[i], columns, i+1)
		if err != nil {
			skip := SkippedRow{Position: i + 1, Reason: err.Error()}
			if ae, ok := err.(*apperr.Error); ok {
				skip.Column = ae.Column
			}
			snap.Skipped = append(snap.Skipped, skip)
			continue
		}
		snap.Records = append(snap.Records, rec)
	}
	return snap
}

func (c *TableCache) load(id string, version uint64) (*Snapshot, bool) {
	raw, err := c.cache.Get(manifestKey(id))
	if err != nil {
		return nil, false
	}
	var m manifest
	if err := msgpack.Unmarshal(raw, &m); err != nil || m.Version != version {
		return nil, false
	}

	var buf bytes.Buffer
	for i := 0; i < m.Chunks; i++ {
		part, err := c.cache.Get(chunkKey(id, m.Version, i))
		if err != nil {
			return nil, false
		}
		buf.Write(part)
	}

	dec := msgpack.NewDecoder(&buf)
	dec.UseLooseInterfaceDecoding(true)
	var snap Snapshot
	if err := dec.Decode(&snap); err != nil {
		return nil, false
	}
	return &snap, true
}

func (c *TableCache) save(id string, snap *Snapshot) error {
	chunks, err := c.putChunks(id, snap)
	if err != nil {
		return err
	}
	m, err := msgpack.Marshal(manifest{Version: snap.Version, Chunks: chunks})
	if err != nil {
		return err
	}
	return c.cache.Set(manifestKey(id), m, c.expire())
}

// putChunks writes snap under keys carrying its version, so a slow save of
// an older version never overwrites the chunks a newer manifest points at.
func (c *TableCache) putChunks(id string, snap *Snapshot) (int, error) {
	data, err := msgpack.Marshal(snap)
	if err != nil {
		return 0, err
	}

	// leave room for the key and freecache's entry header
	size := c.chunk - len(chunkKey(id, snap.Version, 0)) - 64
	if size <= 0 {
		return 0, freecache.ErrLargeEntry
	}

	expire := c.expire()
	chunks := 0
	for off := 0; off < len(data) || chunks == 0; off += size {
		end := off + size
		if end > len(data) {
			end = len(data)
		}
		if err := c.cache.Set(chunkKey(id, snap.Version, chunks), data[off:end], expire); err != nil {
			return 0, err
		}
		chunks++
	}
	return chunks, nil
}

func (c *TableCache) expire() int {
	if e := int(c.ttl / time.Second); e > 0 {
		return e
	}
	return 1
}

func manifestKey(id string) []byte {
	return []byte(id + "#m")
}

func chunkKey(id string, version uint64, i int) []byte {
	return []byte(id + "#" + strconv.FormatUint(version, 10) + "#" + strconv.Itoa(i))
}
