package logger

import (
	"context"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	t.Run("prod builds", func(t *testing.T) {
		if _, err := NewLogger("prod"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("local builds", func(t *testing.T) {
		if _, err := NewLogger("local"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("level override applies", func(t *testing.T) {
		l, err := NewLogger("local", "error")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !l.Core().Enabled(zapcore.ErrorLevel) {
			t.Error("error level must be enabled")
		}
		if l.Core().Enabled(zapcore.InfoLevel) {
			t.Error("info must be suppressed by the override")
		}
	})

	t.Run("invalid level fails", func(t *testing.T) {
		if _, err := NewLogger("prod", "loud"); err == nil {
			t.Error("expected error for unknown level")
		}
	})
}

func TestContextCarrier(t *testing.T) {
	l, err := NewLogger("local")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := WithContext(context.Background(), l)
	if FromContext(ctx) != l {
		t.Error("context must return the stored logger")
	}
	if FromContext(context.Background()) == nil {
		t.Error("missing logger must fall back to a usable no-op")
	}
}
