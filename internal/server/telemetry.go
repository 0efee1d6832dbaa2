// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/AccelByte/extend-payplay-rewards/pkg/common"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/propagators/b3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Propagator accepts Zipkin B3 headers from the platform gateway as well as
// W3C traceparent and baggage from other callers.
func Propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		b3.New(b3.WithInjectEncoding(b3.B3MultipleHeader)),
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

// SetupTelemetry installs the global tracer provider and propagator. The
// returned func flushes pending spans and stops the exporter.
func SetupTelemetry(ctx context.Context, serviceName, environment, zipkinEndpoint string) (func(context.Context) error, error) {
	tp, err := common.NewTracerProvider(ctx, serviceName, environment, zipkinEndpoint)
	if err != nil {
		return nil, fmt.Errorf("tracer provider: %w", err)
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(Propagator())

	if zipkinEndpoint == "" {
		logrus.Infof("tracing %s (%s) without export", serviceName, environment)
	} else {
		logrus.Infof("tracing %s (%s) to %s", serviceName, environment, zipkinEndpoint)
	}

	return func(ctx context.Context) error {
		return errors.Join(tp.ForceFlush(ctx), tp.Shutdown(ctx))
	}, nil
}
