// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/AccelByte/extend-payplay-rewards/pkg/common"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const defaultProbeInterval = 10 * time.Second

// HealthChecker is a dependency whose reachability decides the serving
// status.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// GRPCServer serves gRPC health and reflection. The health status follows
// the registered checkers.
type GRPCServer struct {
	server        *grpc.Server
	health        *health.Server
	port          int
	serviceName   string
	checkers      []HealthChecker
	probeInterval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
}

// NewGRPCServer creates a new gRPC server instance.
func NewGRPCServer(port int, serviceName string, checkers ...HealthChecker) *GRPCServer {
	return &GRPCServer{
		port:          port,
		serviceName:   serviceName,
		checkers:      checkers,
		probeInterval: defaultProbeInterval,
		stop:          make(chan struct{}),
	}
}

// Setup configures the gRPC server with interceptors and registers the
// health and reflection services.
func (s *GRPCServer) Setup() error {
	unaryInterceptors := []grpc.UnaryServerInterceptor{
		logging.UnaryServerInterceptor(common.InterceptorLogger(logrus.StandardLogger())),
	}
	streamInterceptors := []grpc.StreamServerInterceptor{
		logging.StreamServerInterceptor(common.InterceptorLogger(logrus.StandardLogger())),
	}

	s.server = grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(unaryInterceptors...),
		grpc.ChainStreamInterceptor(streamInterceptors...),
	)

	s.health = health.NewServer()
	grpc_health_v1.RegisterHealthServer(s.server, s.health)
	reflection.Register(s.server)

	// not serving until the first probe passes
	s.setStatus(grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	logrus.Infof("gRPC reflection and health check enabled (%d checkers)", len(s.checkers))
	return nil
}

// Probe runs every checker once and updates the serving status. It returns
// the first failure.
func (s *GRPCServer) Probe(ctx context.Context) error {
	for _, c := range s.checkers {
		if err := c.Check(ctx); err != nil {
			s.setStatus(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
			return fmt.Errorf("%s: %w", c.Name(), err)
		}
	}
	s.setStatus(grpc_health_v1.HealthCheckResponse_SERVING)
	return nil
}

func (s *GRPCServer) setStatus(status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	if s.serviceName != "" {
		s.health.SetServingStatus(s.serviceName, status)
	}
}

func (s *GRPCServer) watch(ctx context.Context) {
	ticker := time.NewTicker(s.probeInterval)
	defer ticker.Stop()

	healthy := true
	for {
		if err := s.Probe(ctx); err != nil {
			if healthy {
				logrus.Warnf("health probe failed, reporting NOT_SERVING: %v", err)
			}
			healthy = false
		} else if !healthy {
			logrus.Infof("health probe recovered, reporting SERVING")
			healthy = true
		}

		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
		}
	}
}

// Start begins listening and serving gRPC requests.
func (s *GRPCServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.port, err)
	}

	go s.watch(ctx)
	go func() {
		logrus.Infof("gRPC server listening on port %d", s.port)
		if err := s.server.Serve(lis); err != nil {
			logrus.Fatalf("gRPC server failed: %v", err)
		}
	}()

	return nil
}

// Shutdown gracefully stops the gRPC server.
func (s *GRPCServer) Shutdown(ctx context.Context) error {
	logrus.Info("shutting down gRPC server...")
	s.stopOnce.Do(func() { close(s.stop) })
	s.health.Shutdown()
	s.server.GracefulStop()
	logrus.Info("gRPC server stopped")
	return nil
}
