package testutil

import (
	"os/exec"
	"testing"
)

// RequireCommand skips the test when the named binary is not on the
// search path. Tests that drive real subprocesses use this so they do
// not fail on stripped-down build hosts.
func RequireCommand(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("Skipping test: requires %s on PATH", name)
	}
}
