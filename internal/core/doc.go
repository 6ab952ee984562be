// Package core is the generic entity service of the record store.
//
// The service turns untyped storage tables into records using the schemas
// in an injected schema.Registry. It is independent of any transport and
// can be driven by the web handlers, tools or tests.
//
// # Operations
//
//   - [Service.Create] appends a record, generating the primary key when
//     it is absent and applying create defaults and stamps.
//   - [Service.FetchWithChildren] reads one record and fills every declared
//     child relation. A broken relation yields an empty list, never an
//     error.
//   - [Service.Patch] rewrites only the cells that changed. An exact no-op
//     writes nothing and records no audit event.
//   - [Service.CascadeDelete] removes a record and, best effort, its
//     children.
//   - [Service.List] filters, searches, sorts and pages a table snapshot.
//
// [Operations] wraps these in a uniform [Result] for inbound callers.
//
// # Caching
//
// Positions come from a cache.RowIndex and read-heavy paths use a
// cache.TableCache. Both are invalidated by the storage.Store before any
// mutation returns and check the table version on read, so a cache built
// before a write in this process is never served after it. Writes from
// other processes are only seen once the row index misses or the snapshot
// TTL expires.
//
// # Concurrency
//
// There are no transactions. Concurrent patches of one row may lose an
// update, and an interrupted cascade may orphan child rows. A
// [WriteLimiter] caps how many mutations run at once.
package core
