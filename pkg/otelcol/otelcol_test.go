package otelcol

import (
	"testing"

	"partner-incentives/pkg/config"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx/fxtest"
)

func TestDisabledTracingIsNoop(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	tp := ProvideTracerProvider(lc, &config.Config{})
	require.IsType(t, noop.TracerProvider{}, tp)
}

func TestUnknownProtocolFallsBackToNoop(t *testing.T) {
	cfg := &config.Config{}
	cfg.Otel.Enabled = true
	cfg.Otel.Protocol = "carrier-pigeon"

	tp := ProvideTracerProvider(fxtest.NewLifecycle(t), cfg)
	require.IsType(t, noop.TracerProvider{}, tp)
}
