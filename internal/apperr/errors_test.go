package apperr

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestIs_MatchesSentinelByKind(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"not found", NotFound("Providers", "p1"), ErrNotFound, true},
		{"schema", SchemaNotFound("Widgets"), ErrSchemaNotFound, true},
		{"wrapped decode", fmt.Errorf("list: %w", Decode("Details (JSON)", 4, io.EOF)), ErrDecode, true},
		{"storage is not not found", Storage("Providers", io.EOF), ErrNotFound, false},
		{"unauthorized", Unauthorized("create"), ErrUnauthorized, true},
		{"plain error", errors.New("boom"), ErrStorage, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.want {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.want)
			}
		})
	}
}

func TestStorage_UnwrapsCause(t *testing.T) {
	err := Storage("Providers", io.ErrUnexpectedEOF)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Storage error should unwrap to its cause")
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(fmt.Errorf("wrap: %w", NotFound("Facilities", "f1"))); got != KindNotFound {
		t.Errorf("KindOf() = %q, want %q", got, KindNotFound)
	}
	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
}

func TestError_MessageIncludesContext(t *testing.T) {
	err := Decode("Details (JSON)", 7, errors.New("unexpected end of JSON input"))
	msg := err.Error()
	for _, want := range []string{"decode failed", `column="Details (JSON)"`, "row=7", "unexpected end"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}
