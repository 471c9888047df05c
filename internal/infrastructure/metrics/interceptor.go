package metrics

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor returns a gRPC interceptor that records metrics for each request.
// The exporter is optional.
func UnaryServerInterceptor(collector *Collector, exporter *PrometheusExporter) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		operation := OperationName(info.FullMethod)

		collector.RecordRequest(operation)
		if exporter != nil {
			exporter.RecordRequest(operation)
		}

		resp, err := handler(ctx, req)

		duration := time.Since(start).Seconds()
		collector.RecordDuration(operation, duration)
		if exporter != nil {
			exporter.RecordDuration(operation, duration)
		}

		if err != nil {
			code := status.Code(err).String()
			collector.RecordError(operation, code)
			if exporter != nil {
				exporter.RecordError(operation, code)
			}
		}

		return resp, err
	}
}
