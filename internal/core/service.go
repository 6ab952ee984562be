package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/credstore/internal/apperr"
	"github.com/JonMunkholm/credstore/internal/cache"
	"github.com/JonMunkholm/credstore/internal/codec"
	"github.com/JonMunkholm/credstore/internal/logging"
	"github.com/JonMunkholm/credstore/internal/metrics"
	"github.com/JonMunkholm/credstore/internal/schema"
	"github.com/JonMunkholm/credstore/internal/storage"
)

// Table cache defaults. The TTL bounds how long a snapshot is reused by
// read paths; version checks keep it coherent with local writes.
const (
	DefaultTableCacheSize = 8 * 1024 * 1024
	DefaultTableCacheTTL  = 30 * time.Second
)

// Service runs schema-driven CRUD over a Store.
type Service struct {
	registry *schema.Registry
	store    *storage.Store
	index    *cache.RowIndex
	tables   *cache.TableCache

	identity     Identity
	audit        AuditLog
	ids          IDGenerator
	now          func() time.Time
	requireActor bool
	profiles     Profiles
	limiter      *WriteLimiter
	metrics      *metrics.Metrics

	cacheSize int
	cacheTTL  time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithIdentity sets the actor resolver. Defaults to ContextIdentity.
func WithIdentity(id Identity) Option {
	return func(s *Service) { s.identity = id }
}

// WithAuditLog sets the audit sink. Defaults to SlogAuditLog.
func WithAuditLog(l AuditLog) Option {
	return func(s *Service) { s.audit = l }
}

// WithIDGenerator sets the primary-key generator. Defaults to UUIDGenerator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Service) { s.ids = g }
}

// WithClock overrides time.Now for stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// RequireActor rejects writes that have no resolved actor.
func RequireActor(require bool) Option {
	return func(s *Service) { s.requireActor = require }
}

// WithProfiles replaces the per-entity listing profiles.
func WithProfiles(p Profiles) Option {
	return func(s *Service) { s.profiles = p }
}

// WithWriteLimiter bounds concurrent mutations.
func WithWriteLimiter(l *WriteLimiter) Option {
	return func(s *Service) { s.limiter = l }
}

// WithMetrics records operation outcomes and cache lookups.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTableCache sizes the materialized-table cache. A ttl of zero makes
// every read go to storage.
func WithTableCache(size int, ttl time.Duration) Option {
	return func(s *Service) {
		s.cacheSize = size
		s.cacheTTL = ttl
	}
}

// NewService wires the caches to store and validates the column manifest
// of every registered entity.
func NewService(registry *schema.Registry, store *storage.Store, opts ...Option) (*Service, error) {
	if err := codec.Validate(registry); err != nil {
		return nil, err
	}

	s := &Service{
		registry:  registry,
		store:     store,
		identity:  ContextIdentity{},
		audit:     SlogAuditLog{},
		ids:       UUIDGenerator{},
		now:       time.Now,
		profiles:  DefaultProfiles(),
		cacheSize: DefaultTableCacheSize,
		cacheTTL:  DefaultTableCacheTTL,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.index = cache.NewRowIndex(store, s.metrics)
	s.tables = cache.NewTableCache(store, s.cacheSize, s.cacheTTL, s.metrics)
	return s, nil
}

// Registry returns the schemas the service was built with.
func (s *Service) Registry() *schema.Registry {
	return s.registry
}

// Limiter returns the write limiter, or nil.
func (s *Service) Limiter() *WriteLimiter {
	return s.limiter
}

// EnsureTables creates every registered table that does not exist yet and
// checks the header of those that do.
func (s *Service) EnsureTables(ctx context.Context) error {
	var errs []error
	for _, e := range s.registry.All() {
		if err := s.store.EnsureTable(ctx, e.Table, e.Columns); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Name, err))
			continue
		}
		logging.FromContext(ctx).Debug("table ready", "entity", e.Name, "table", e.Table)
	}
	return errors.Join(errs...)
}

// actor resolves the current actor, failing when writes require one.
func (s *Service) actor(ctx context.Context, op string) (Actor, error) {
	a := s.identity.Current(ctx)
	if s.requireActor && a.Email == "" {
		return a, apperr.Unauthorized(op)
	}
	return a, nil
}

// acquire takes a write slot; the returned func releases it.
func (s *Service) acquire(ctx context.Context) (func(), error) {
	if s.limiter == nil {
		return func() {}, nil
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	return s.limiter.Release, nil
}

// locate finds the row position of id through the row index and returns
// the row read at that position. A position whose key no longer matches
// means another process moved rows; the index is rebuilt once.
func (s *Service) locate(ctx context.Context, e schema.Entity, id string) (int, storage.Row, error) {
	keyIdx := e.KeyIndex()
	for attempt := 0; attempt < 2; attempt++ {
		pos, ok, err := s.index.Lookup(ctx, e.Table, keyIdx, id)
		if err != nil {
			return 0, nil, err
		}
		if !ok {
			return 0, nil, apperr.NotFound(e.Name, id)
		}

		row, err := s.store.ReadRow(ctx, e.Table, pos, len(e.Columns))
		if err != nil && !errors.Is(err, storage.ErrRowOutOfRange) {
			return 0, nil, err
		}
		if err == nil && keyIdx < len(row) && storage.CellString(row[keyIdx]) == id {
			return pos, row, nil
		}
		s.index.Invalidate(e.Table)
	}
	return 0, nil, apperr.NotFound(e.Name, id)
}

// stamp sets the at/by stamp fields on rec. With overwrite false, fields
// the caller supplied are kept.
func (s *Service) stamp(rec codec.Record, atColumn, byColumn string, actor Actor, overwrite bool) {
	if atColumn != "" {
		f := codec.ColumnToField(atColumn)
		if _, ok := rec[f]; overwrite || !ok {
			rec[f] = s.now().UTC().Format(time.RFC3339)
		}
	}
	if byColumn != "" {
		f := codec.ColumnToField(byColumn)
		if _, ok := rec[f]; overwrite || !ok {
			rec[f] = actor.Email
		}
	}
}
