package zaplogger

import (
	"errors"
	"testing"

	"github.com/Zhima-Mochi/stockkeeper/internal/observability"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_ForwardsLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core), observability.F("service", "stockkeeper"))

	scoped := l.With(observability.F("item", "apple"))
	scoped.Debug("d")
	scoped.Info("i")
	scoped.Warn("w", observability.F("quantity", 3))
	scoped.Error("e", observability.F("error", errors.New("boom")))

	entries := logs.All()
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	wantLevels := []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	for i, e := range entries {
		if e.Level != wantLevels[i] {
			t.Fatalf("entry %d: expected level %s, got %s", i, wantLevels[i], e.Level)
		}
		ctx := e.ContextMap()
		if ctx["service"] != "stockkeeper" || ctx["item"] != "apple" {
			t.Fatalf("entry %d: missing fixed fields: %v", i, ctx)
		}
	}
	if got := entries[3].ContextMap()["error"]; got != "boom" {
		t.Fatalf("expected error field boom, got %v", got)
	}
}
