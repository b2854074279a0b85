package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	collectorlogs "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	collectormetrics "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	collectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/grpc"

	"github.com/spanhouse/spanhouse/pkg/otlp"
)

// GRPCServer exposes the three OTLP export services over gRPC. It shares the
// post-decode pipeline with the HTTP ingest path.
type GRPCServer struct {
	handler *Handler
	logger  *slog.Logger
	server  *grpc.Server
}

// NewGRPCServer creates the OTLP gRPC ingest server.
func NewGRPCServer(handler *Handler, logger *slog.Logger) *GRPCServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &GRPCServer{handler: handler, logger: logger, server: grpc.NewServer()}
	collectortrace.RegisterTraceServiceServer(s.server, &traceService{handler: handler})
	collectormetrics.RegisterMetricsServiceServer(s.server, &metricsService{handler: handler})
	collectorlogs.RegisterLogsServiceServer(s.server, &logsService{handler: handler})
	return s
}

// Serve listens on addr until Stop is called.
func (s *GRPCServer) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.logger.Info("grpc ingest listening", "addr", addr)
	return s.server.Serve(lis)
}

// Stop drains in-flight RPCs and shuts the server down.
func (s *GRPCServer) Stop() { s.server.GracefulStop() }

type traceService struct {
	collectortrace.UnimplementedTraceServiceServer
	handler *Handler
}

func (s *traceService) Export(ctx context.Context, req *collectortrace.ExportTraceServiceRequest) (*collectortrace.ExportTraceServiceResponse, error) {
	s.handler.IngestSpans(ctx, otlp.SpansFromProto(req))
	return &collectortrace.ExportTraceServiceResponse{}, nil
}

type metricsService struct {
	collectormetrics.UnimplementedMetricsServiceServer
	handler *Handler
}

func (s *metricsService) Export(ctx context.Context, req *collectormetrics.ExportMetricsServiceRequest) (*collectormetrics.ExportMetricsServiceResponse, error) {
	s.handler.IngestMetrics(ctx, otlp.MetricsFromProto(req))
	return &collectormetrics.ExportMetricsServiceResponse{}, nil
}

type logsService struct {
	collectorlogs.UnimplementedLogsServiceServer
	handler *Handler
}

func (s *logsService) Export(ctx context.Context, req *collectorlogs.ExportLogsServiceRequest) (*collectorlogs.ExportLogsServiceResponse, error) {
	s.handler.IngestLogs(ctx, otlp.LogsFromProto(req))
	return &collectorlogs.ExportLogsServiceResponse{}, nil
}
