package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestPropagateToLogger(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-123")
	ctx = WithRequestID(ctx, "req-456")
	ctx = WithTool(ctx, "search_memos")

	var buf bytes.Buffer
	logger := PropagateToLogger(ctx, zerolog.New(&buf))
	logger.Info().Msg("test message")

	output := buf.String()
	for _, want := range []string{`"trace_id":"trace-123"`, `"request_id":"req-456"`, `"tool":"search_memos"`} {
		if !strings.Contains(output, want) {
			t.Errorf("Log output missing %s: %s", want, output)
		}
	}
	if strings.Contains(output, "operation") {
		t.Errorf("Log output should not contain unset operation: %s", output)
	}
}

func TestLoggerFromContextWithoutValues(t *testing.T) {
	var buf bytes.Buffer
	logger := LoggerFromContext(context.Background(), zerolog.New(&buf))
	logger.Info().Msg("plain")

	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("Unexpected trace_id in output: %s", buf.String())
	}
}

func TestMergeContext(t *testing.T) {
	source := WithTraceID(context.Background(), "trace-src")
	source = WithTool(source, "list_memos")

	target := WithTraceID(context.Background(), "trace-target")
	merged := MergeContext(target, source)

	if GetTraceID(merged) != "trace-target" {
		t.Error("Existing trace ID should be kept")
	}
	if GetTool(merged) != "list_memos" {
		t.Error("Missing tool should be copied")
	}
}

func TestDetach(t *testing.T) {
	parent, cancel := context.WithCancel(WithRequestID(context.Background(), "req-1"))
	cancel()

	detached := Detach(parent)
	if detached.Err() != nil {
		t.Error("Detached context should not be cancelled")
	}
	if GetRequestID(detached) != "req-1" {
		t.Error("Request ID not carried over")
	}
}
