package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/JonMunkholm/credstore/internal/codec"
	"github.com/JonMunkholm/credstore/internal/logging"
	"github.com/JonMunkholm/credstore/internal/schema"
	"github.com/JonMunkholm/credstore/internal/storage"
)

// AuditKind classifies an audit event.
type AuditKind string

const (
	AuditRequest AuditKind = "Request"
	AuditSystem  AuditKind = "System"
	AuditError   AuditKind = "Error"
	AuditWarning AuditKind = "Warning"
)

// level returns the slog level an audit kind is logged at.
func (k AuditKind) level() slog.Level {
	switch k {
	case AuditError:
		return slog.LevelError
	case AuditWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// AuditLog records audit events. Record is fire-and-forget: a sink that
// fails must log the failure itself and never surface it to the caller.
type AuditLog interface {
	Record(ctx context.Context, kind AuditKind, message string, fields map[string]any)
}

// auditFields copies fields and adds the request's actor, IP and user agent.
func auditFields(ctx context.Context, fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		out[k] = v
	}
	if actor := GetActorFromContext(ctx); actor != "" {
		out["actor"] = actor
	}
	if ip := GetIPAddressFromContext(ctx); ip != "" {
		out["ip"] = ip
	}
	if ua := GetUserAgentFromContext(ctx); ua != "" {
		out["user_agent"] = ua
	}
	return out
}

// SlogAuditLog writes audit events to the structured logger.
type SlogAuditLog struct{}

func (SlogAuditLog) Record(ctx context.Context, kind AuditKind, message string, fields map[string]any) {
	args := []any{"audit_kind", string(kind)}
	for k, v := range auditFields(ctx, fields) {
		args = append(args, k, v)
	}
	logging.FromContext(ctx).Log(ctx, kind.level(), message, args...)
}

// TableAuditLog appends audit events to the AuditLog table.
type TableAuditLog struct {
	store  *storage.Store
	entity schema.Entity
	ids    IDGenerator
	now    func() time.Time
}

// NewTableAuditLog resolves the AuditLog entity in registry.
func NewTableAuditLog(store *storage.Store, registry *schema.Registry, ids IDGenerator) (*TableAuditLog, error) {
	e, err := registry.Resolve(schema.AuditLog)
	if err != nil {
		return nil, err
	}
	return &TableAuditLog{store: store, entity: e, ids: ids, now: time.Now}, nil
}

func (l *TableAuditLog) Record(ctx context.Context, kind AuditKind, message string, fields map[string]any) {
	fields = auditFields(ctx, fields)
	actor, _ := fields["actor"].(string)
	rec := codec.Record{
		"id":        l.ids.NewID(),
		"timestamp": l.now().UTC().Format(time.RFC3339),
		"kind":      string(kind),
		"actor":     actor,
		"message":   message,
		"context":   fields,
	}

	row, err := codec.EncodeRecord(rec, l.entity.Columns, nil)
	if err == nil {
		_, err = l.store.Append(ctx, l.entity.Table, row)
	}
	if err != nil {
		logging.FromContext(ctx).Warn("audit: record failed",
			"audit_kind", string(kind),
			"message", message,
			"error", err,
		)
	}
}

// MultiAuditLog fans an event out to every sink.
type MultiAuditLog []AuditLog

func (m MultiAuditLog) Record(ctx context.Context, kind AuditKind, message string, fields map[string]any) {
	for _, l := range m {
		l.Record(ctx, kind, message, fields)
	}
}
