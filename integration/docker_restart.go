//go:build integration

package integration

import (
	"context"
	"os/exec"
	"testing"
)

// restartContainer bounces the compose service named by E2E_SERVICE (default
// "tienda"). Only meaningful with a persistent STORE_BACKEND.
func restartContainer(t *testing.T, ctx context.Context) {
	t.Helper()

	svc := getenv("E2E_SERVICE", "tienda")
	cmd := exec.CommandContext(ctx, "docker", "compose", "restart", svc)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("docker compose restart %s failed: %v\n%s", svc, err, string(out))
	}
}
