package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewProviderDisabled(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderUnsupportedExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{
		Enabled:      true,
		ServiceName:  "morphd",
		ExporterType: "carrier-pigeon",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported exporter type")
}

func TestTracerReturnsNamedTracer(t *testing.T) {
	tr := Tracer("pipeline")
	require.NotNil(t, tr)
}
