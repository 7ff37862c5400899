package tracing

import (
	"context"
	"testing"
)

func TestStartSpanSetsTraceID(t *testing.T) {
	if err := InitOpenTelemetry("memoranda-test"); err != nil {
		t.Fatalf("InitOpenTelemetry failed: %v", err)
	}
	defer func() { _ = ShutdownOpenTelemetry(context.Background()) }()

	ctx, span := StartSpan(context.Background(), "memoranda.test", "test.span")
	defer span.End()

	if !span.SpanContext().IsValid() {
		t.Fatal("Expected a valid span context")
	}
	if GetTraceID(ctx) != span.SpanContext().TraceID().String() {
		t.Error("Trace ID not propagated from span")
	}
}

func TestStartSpanKeepsExistingTraceID(t *testing.T) {
	ctx := WithTraceID(context.Background(), "custom")
	ctx, span := StartSpan(ctx, "memoranda.test", "test.span")
	defer span.End()

	if GetTraceID(ctx) != "custom" {
		t.Errorf("Expected custom trace ID, got %s", GetTraceID(ctx))
	}
}
