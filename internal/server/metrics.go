// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/AccelByte/extend-payplay-rewards/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// MetricsServer exposes the payout, settlement and HTTP collectors on a
// private registry, separate from the public API port.
type MetricsServer struct {
	port     int
	endpoint string
	server   *http.Server
}

func NewMetricsServer(port int, endpoint string) *MetricsServer {
	return &MetricsServer{port: port, endpoint: endpoint}
}

func newRegistry() (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	all := append([]prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}, metrics.Collectors()...)
	for _, c := range all {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return reg, nil
}

// Setup builds the registry and the scrape handler.
func (m *MetricsServer) Setup() error {
	reg, err := newRegistry()
	if err != nil {
		return err
	}
	scrape := promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorLog:      logrus.StandardLogger(),
		ErrorHandling: promhttp.ContinueOnError,
	})

	mux := http.NewServeMux()
	mux.Handle(m.endpoint, promhttp.InstrumentMetricHandler(reg, scrape))
	m.server = &http.Server{Addr: fmt.Sprintf(":%d", m.port), Handler: mux}
	return nil
}

func (m *MetricsServer) Handler() http.Handler {
	return m.server.Handler
}

// Start binds the port before returning, so a port clash fails startup
// instead of killing the process later.
func (m *MetricsServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", m.server.Addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	logrus.Infof("metrics server listening on port %d%s", m.port, m.endpoint)
	go func() {
		if err := m.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("metrics server stopped: %v", err)
		}
	}()
	return nil
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	if err := m.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	logrus.Info("metrics server stopped")
	return nil
}
