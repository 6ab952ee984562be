package core

import (
	"context"
	"sort"
	"testing"

	"github.com/google/uuid"

	"github.com/JonMunkholm/credstore/internal/codec"
	"github.com/JonMunkholm/credstore/internal/schema"
	"github.com/JonMunkholm/credstore/internal/storage"
)

func TestTableAuditLog_AppendsRow(t *testing.T) {
	ctx := context.Background()
	registry := schema.Default()
	store := storage.NewStore(storage.NewMemoryBackend(), nil)
	e, _ := registry.Entity(schema.AuditLog)
	if err := store.EnsureTable(ctx, e.Table, e.Columns); err != nil {
		t.Fatalf("EnsureTable() error = %v", err)
	}

	log, err := NewTableAuditLog(store, registry, &seqIDs{})
	if err != nil {
		t.Fatalf("NewTableAuditLog() error = %v", err)
	}

	ctx = ContextWithActor(ctx, "ana@example.com")
	ctx = ContextWithIPAddress(ctx, "10.1.2.3")
	log.Record(ctx, AuditRequest, "Create", map[string]any{"entity": "Providers"})

	rows, err := store.ReadAll(ctx, e.Table)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header + 1", len(rows))
	}

	rec, err := codec.DecodeRow(rows[1], e.Columns, 2)
	if err != nil {
		t.Fatalf("DecodeRow() error = %v", err)
	}
	if rec["kind"] != "Request" || rec["actor"] != "ana@example.com" || rec["message"] != "Create" {
		t.Errorf("audit row = %v", rec)
	}
	fields, ok := rec["context"].(map[string]any)
	if !ok {
		t.Fatalf("context = %T, want map", rec["context"])
	}
	if fields["entity"] != "Providers" || fields["ip"] != "10.1.2.3" {
		t.Errorf("context = %v, want entity and ip", fields)
	}
}

func TestTableAuditLog_SwallowsStorageFailure(t *testing.T) {
	store := storage.NewStore(storage.NewMemoryBackend(), nil)
	log, err := NewTableAuditLog(store, schema.Default(), UUIDGenerator{})
	if err != nil {
		t.Fatalf("NewTableAuditLog() error = %v", err)
	}
	// table was never created; Record must not panic or block
	log.Record(context.Background(), AuditError, "boom", nil)
}

func TestMultiAuditLog_FansOut(t *testing.T) {
	a, b := &recordingAudit{}, &recordingAudit{}
	MultiAuditLog{a, b, SlogAuditLog{}}.Record(context.Background(), AuditWarning, "careful", nil)

	if a.count(AuditWarning, "careful") != 1 || b.count(AuditWarning, "careful") != 1 {
		t.Error("event not delivered to every sink")
	}
}

func TestIDGenerators(t *testing.T) {
	if _, err := uuid.Parse(UUIDGenerator{}.NewID()); err != nil {
		t.Errorf("UUIDGenerator id does not parse: %v", err)
	}

	g, err := NewIDGenerator("ULID")
	if err != nil {
		t.Fatalf("NewIDGenerator(ULID) error = %v", err)
	}
	ids := make([]string, 50)
	for i := range ids {
		ids[i] = g.NewID()
	}
	if !sort.StringsAreSorted(ids) {
		t.Error("ULIDs from one generator are not increasing")
	}
	if ids[0] == ids[1] {
		t.Error("duplicate ULID")
	}

	if _, err := NewIDGenerator("serial"); err == nil {
		t.Error("NewIDGenerator(serial) error = nil, want error")
	}
}

func TestContextIdentity(t *testing.T) {
	ctx := ContextWithActor(context.Background(), "lee@example.com")
	if got := (ContextIdentity{}).Current(ctx); got.Email != "lee@example.com" {
		t.Errorf("Current() = %+v, want lee@example.com", got)
	}
	if got := (ContextIdentity{}).Current(context.Background()); got.Email != "" {
		t.Errorf("Current() without actor = %+v, want anonymous", got)
	}
}
