package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" authorization=Bearer abc , x-tenant = dsc,broken,=empty,")
	require.Equal(t, map[string]string{
		"authorization": "Bearer abc",
		"x-tenant":      "dsc",
	}, headers)
}

func TestInitRequiresServiceName(t *testing.T) {
	_, err := Init(context.Background(), Config{})
	require.Error(t, err)
}

func TestInitWithoutExportersOnlyInstallsPropagators(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "stabled"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestConfigWithEnvOverlaysExporterSettings(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "x-tenant=ops")

	base := Config{ServiceName: "stabled", Endpoint: "localhost:4318", Headers: map[string]string{"x-team": "risk"}}
	cfg := base.WithEnv()
	require.Equal(t, "collector:4318", cfg.Endpoint)
	require.Equal(t, map[string]string{"x-team": "risk", "x-tenant": "ops"}, cfg.Headers)
	require.Len(t, base.Headers, 1)
}
