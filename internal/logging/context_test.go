package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"kmsgrab/internal/logging"
)

func TestContextCarriersRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = logging.WithCaptureID(ctx, "abc-123")
	ctx = logging.WithStage(ctx, "export")
	ctx = logging.WithDevice(ctx, "/dev/dri/card0")

	if id, ok := logging.CaptureIDFromContext(ctx); !ok || id != "abc-123" {
		t.Fatalf("capture id = %q ok=%v", id, ok)
	}
	if stage, ok := logging.StageFromContext(ctx); !ok || stage != "export" {
		t.Fatalf("stage = %q ok=%v", stage, ok)
	}
	if device, ok := logging.DeviceFromContext(ctx); !ok || device != "/dev/dri/card0" {
		t.Fatalf("device = %q ok=%v", device, ok)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := context.Background()
	ctx = logging.WithCaptureID(ctx, "run-42")
	ctx = logging.WithStage(ctx, "convert")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	logging.WithContext(ctx, logger).Info("contextual log")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode json line: %v", err)
	}
	if entry[logging.FieldCaptureID] != "run-42" {
		t.Fatalf("capture_id missing: %v", entry)
	}
	if entry[logging.FieldStage] != "convert" {
		t.Fatalf("stage missing: %v", entry)
	}
}

func TestWithContextNilLoggerAndEmptyContext(t *testing.T) {
	logger := logging.WithContext(context.Background(), nil)
	if logger == nil {
		t.Fatal("expected usable logger")
	}
	logger.Info("goes nowhere")

	if _, ok := logging.CaptureIDFromContext(context.Background()); ok {
		t.Fatal("expected missing capture id on empty context")
	}
}

func TestWarnWithContextInjectsGuidanceFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	logging.WarnWithContext(logger, "pitch mismatch", "framebuffer_pitch_mismatch")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode json line: %v", err)
	}
	if entry[logging.FieldEventType] != "framebuffer_pitch_mismatch" {
		t.Fatalf("event_type missing: %v", entry)
	}
	if entry[logging.FieldErrorHint] == nil {
		t.Fatalf("error_hint missing: %v", entry)
	}
	if entry[logging.FieldImpact] == nil {
		t.Fatalf("impact missing: %v", entry)
	}
}

func TestNewComponentLoggerTagsLines(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	logging.NewComponentLogger(base, "locator").Info("scan started")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode json line: %v", err)
	}
	if entry[logging.FieldComponent] != "locator" {
		t.Fatalf("component missing: %v", entry)
	}
}

func TestNewComponentLoggerNilBase(t *testing.T) {
	logger := logging.NewComponentLogger(nil, "capture")
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	logger.Info("discarded")
}
