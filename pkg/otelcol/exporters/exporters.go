package exporters

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
)

const (
	ProtocolHTTP = "http"
	ProtocolGRPC = "grpc"
)

// New builds an OTLP span exporter for a plaintext collector at endpoint.
// Both transports gzip the payload.
func New(protocol, endpoint string) (*otlptrace.Exporter, error) {
	var client otlptrace.Client
	switch protocol {
	case ProtocolHTTP, "":
		client = otlptracehttp.NewClient(
			otlptracehttp.WithInsecure(),
			otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
			otlptracehttp.WithEndpoint(endpoint),
		)
	case ProtocolGRPC:
		client = otlptracegrpc.NewClient(
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithCompressor("gzip"),
			otlptracegrpc.WithEndpoint(endpoint),
		)
	default:
		return nil, fmt.Errorf("unsupported otlp protocol %q", protocol)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return otlptrace.New(ctx, client)
}
