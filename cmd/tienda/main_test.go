package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"MiniTienda/internal/config"
)

func TestEndpoints(t *testing.T) {
	got := endpoints(config.Config{MetricsEnabled: true})
	require.Contains(t, got, "GET /")
	require.Contains(t, got, "GET /healthz")
	require.Contains(t, got, "GET /readyz")
	require.Contains(t, got, "GET /metrics")

	require.NotContains(t, endpoints(config.Config{}), "GET /metrics")
}
