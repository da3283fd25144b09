package log_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	ctxlog "github.com/ErlanBelekov/court-capture/internal/log"
	"github.com/ErlanBelekov/court-capture/internal/requestid"
)

func TestContextHandler_AddsContextIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(ctxlog.NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := requestid.WithRequestID(context.Background(), "req-1")
	ctx = ctxlog.WithJobID(ctx, "job-1")
	logger.InfoContext(ctx, "hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if rec["request_id"] != "req-1" {
		t.Fatalf("expected request_id req-1, got %v", rec["request_id"])
	}
	if rec["job_id"] != "job-1" {
		t.Fatalf("expected job_id job-1, got %v", rec["job_id"])
	}
}

func TestContextHandler_OmitsMissingIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(ctxlog.NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	logger.InfoContext(ctxlog.WithJobID(context.Background(), ""), "hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if _, ok := rec["job_id"]; ok {
		t.Fatal("expected no job_id attribute")
	}
	if _, ok := rec["request_id"]; ok {
		t.Fatal("expected no request_id attribute")
	}
}
