package common

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestParseLogLevel(t *testing.T) {
	if got := ParseLogLevel("debug"); got != logrus.DebugLevel {
		t.Errorf("ParseLogLevel(debug) = %v", got)
	}
	if got := ParseLogLevel("loud"); got != logrus.InfoLevel {
		t.Errorf("ParseLogLevel(loud) = %v, expected info", got)
	}
}

func TestScope_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	scope := StartScope(context.Background(), "payout.cycle")
	scope.Tag("cycleID", int64(7))
	inner := StartScope(scope.Ctx, "settlement.settle")
	inner.TraceError(errors.New("ledger reverted"))
	inner.Finish()
	scope.Finish()

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, expected 2", len(spans))
	}
	if spans[0].Name() != "settlement.settle" || spans[1].Name() != "payout.cycle" {
		t.Errorf("span names = %s, %s", spans[0].Name(), spans[1].Name())
	}
	if spans[0].Parent().SpanID() != spans[1].SpanContext().SpanID() {
		t.Error("settlement span is not parented to the cycle span")
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("settlement span status = %v, expected error", spans[0].Status().Code)
	}
	if scope.TraceID == "" || scope.Log.Data[traceIDLogField] != scope.TraceID {
		t.Errorf("scope logger not tagged with trace id %q", scope.TraceID)
	}
	if scope.Log.Data["cycleID"] != int64(7) {
		t.Errorf("log fields = %v, expected cycleID", scope.Log.Data)
	}
	found := false
	for _, kv := range spans[1].Attributes() {
		if kv.Key == "cycleID" && kv.Value.AsInt64() == 7 {
			found = true
		}
	}
	if !found {
		t.Errorf("cycle span attributes = %v", spans[1].Attributes())
	}
}

func TestNewTracerProvider_WithoutEndpoint(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), "payplay", "test", "")
	if err != nil {
		t.Fatalf("NewTracerProvider() error = %v", err)
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
