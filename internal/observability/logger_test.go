package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestLogger_StampsContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo(&buf, "prod", "")

	ctx := WithLogAttrs(context.Background(), "scan", 7)
	ctx = WithLogAttrs(ctx, "row", 3)
	log.InfoContext(ctx, "row claimed")
	log.DebugContext(ctx, "hidden in prod")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("expected 1 record, got %d: %s", len(lines), buf.String())
	}

	var rec map[string]any
	if err := json.Unmarshal(lines[0], &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["msg"] != "row claimed" || rec["scan"] != float64(7) || rec["row"] != float64(3) {
		t.Fatalf("unexpected record %v", rec)
	}
	if _, ok := rec["trace_id"]; ok {
		t.Fatalf("no span active, trace_id must be absent: %v", rec)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		env, level string
		want       slog.Level
	}{
		{"dev", "", slog.LevelDebug},
		{"prod", "", slog.LevelInfo},
		{"dev", "warn", slog.LevelWarn},
		{"prod", "ERROR", slog.LevelError},
		{"prod", "chatty", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := parseLevel(tc.env, tc.level); got != tc.want {
			t.Errorf("parseLevel(%q, %q) = %v, want %v", tc.env, tc.level, got, tc.want)
		}
	}
}
