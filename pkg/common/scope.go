// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package common

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const (
	traceIDLogField = "traceID"
	tracerName      = "payplay-rewards"
)

// Scope pairs a span with a logger for one payout cycle or settlement call.
// Tags land on both, so a log line can be matched to its trace in Zipkin.
type Scope struct {
	Ctx     context.Context
	TraceID string
	Log     *log.Entry

	span oteltrace.Span
}

// StartScope opens a span named name under whatever span ctx already carries.
func StartScope(ctx context.Context, name string) *Scope {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, name)
	traceID := span.SpanContext().TraceID().String()
	return &Scope{
		Ctx:     spanCtx,
		TraceID: traceID,
		Log:     log.WithField(traceIDLogField, traceID),
		span:    span,
	}
}

// Tag sets key on the span and adds it to every later log line of the scope.
func (s *Scope) Tag(key string, value interface{}) {
	s.span.SetAttributes(spanAttribute(key, value))
	s.Log = s.Log.WithField(key, value)
}

func spanAttribute(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}

// TraceEvent marks a step on the span.
func (s *Scope) TraceEvent(msg string) {
	s.span.AddEvent(msg)
}

// TraceError records err and fails the span.
func (s *Scope) TraceError(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s *Scope) Finish() {
	s.span.End()
}
