package internal

import (
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/testutil"
)

// TestGolangciLintCompliance runs golangci-lint over the module. It is
// skipped when golangci-lint is not installed or in -short mode.
func TestGolangciLintCompliance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping lint in short mode")
	}
	testutil.SkipIfNoGolangciLint(t)

	// A per-test build cache keeps the run working in read-only sandboxes.
	cmd := exec.Command("golangci-lint", "run", "--allow-parallel-runners", "./internal/...", "./cmd/...")
	cmd.Dir = projectRoot(t)
	cmd.Env = append(os.Environ(), "GOCACHE="+t.TempDir())
	output, err := cmd.CombinedOutput()
	assert.NoError(t, err, "golangci-lint found issues:\n%s\nRun 'golangci-lint run' to see all issues.", output)
}
