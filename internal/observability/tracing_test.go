package observability

import (
	"context"
	"errors"
	"testing"
)

func TestNewTracerWithoutEndpointIsNoop(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{ServiceName: "turnengine-test"})
	defer shutdown(context.Background())

	ctx, span := tracer.Start(context.Background(), "unit-test")
	if span == nil {
		t.Fatal("expected a non-nil span from the no-op provider")
	}
	span.End()

	if GetTraceID(ctx) == "" {
		// Without an endpoint the span comes from otel's global provider,
		// which yields an invalid span context when no SDK provider is
		// installed; Start must still not panic and must return a usable context.
		t.Log("no-op tracer produced an invalid trace id, which is expected")
	}
}

func TestTraceIterationReturnsSpan(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{ServiceName: "turnengine-test"})
	defer shutdown(context.Background())

	_, span := tracer.TraceIteration(context.Background(), "ctx-1", "task-1", 3)
	defer span.End()

	if !span.IsRecording() {
		// A no-op span never records; this just exercises the call path
		// without asserting provider-specific recording behavior.
		t.Log("span is not recording under the no-op provider")
	}
}

func TestRecordErrorIsNilSafeForNilError(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{ServiceName: "turnengine-test"})
	defer shutdown(context.Background())

	_, span := tracer.Start(context.Background(), "unit-test")
	defer span.End()

	tracer.RecordError(span, nil)
	tracer.RecordError(span, errors.New("boom"))
}

func TestSetAttributesSkipsNonStringKeys(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{ServiceName: "turnengine-test"})
	defer shutdown(context.Background())

	_, span := tracer.Start(context.Background(), "unit-test")
	defer span.End()

	// A non-string key is silently skipped rather than panicking.
	tracer.SetAttributes(span, 42, "value", "key", "ok")
}

func TestAttributeFromValueCoversSupportedTypes(t *testing.T) {
	cases := []any{"s", 1, int64(2), 3.14, true, []int{1, 2}}
	for _, c := range cases {
		kv := attributeFromValue("k", c)
		if string(kv.Key) != "k" {
			t.Fatalf("expected key 'k', got %q", kv.Key)
		}
	}
}
