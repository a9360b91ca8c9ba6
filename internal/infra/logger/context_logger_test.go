package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestContextLogger_WithContext_BusinessKeys(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	cl := NewContextLogger(slog.New(handler))

	ctx := context.Background()
	ctx = WithSearchID(ctx, "search-123")
	ctx = WithDocumentID(ctx, "doc-456")
	ctx = WithPipelineStage(ctx, "stage2")

	cl.WithContext(ctx).Info("test message")

	var logEntry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}

	tests := []struct {
		key      string
		expected string
	}{
		{"reuse.search.id", "search-123"},
		{"reuse.document.id", "doc-456"},
		{"reuse.pipeline.stage", "stage2"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := logEntry[tt.key]
			if !ok {
				t.Errorf("expected key %q to be present in log", tt.key)
				return
			}
			if got != tt.expected {
				t.Errorf("expected %q to be %q, got %q", tt.key, tt.expected, got)
			}
		})
	}
}

func TestContextLogger_WithContext_PartialKeys(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	cl := NewContextLogger(slog.New(handler))

	ctx := WithDocumentID(context.Background(), "doc-only")

	cl.WithContext(ctx).Info("test message")

	var logEntry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}

	if got, ok := logEntry["reuse.document.id"]; !ok || got != "doc-only" {
		t.Errorf("expected reuse.document.id to be 'doc-only', got %v", got)
	}

	// Other keys should not be present
	for _, key := range []string{"reuse.search.id", "reuse.pipeline.stage"} {
		if _, ok := logEntry[key]; ok {
			t.Errorf("expected key %q to not be present in log", key)
		}
	}
}

func TestContextLogger_WithContext_NoKeys(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	cl := NewContextLogger(slog.New(handler))

	cl.WithContext(context.Background()).Info("plain message")

	var logEntry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if logEntry["msg"] != "plain message" {
		t.Errorf("expected msg to be 'plain message', got %v", logEntry["msg"])
	}
}
