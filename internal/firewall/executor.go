package firewall

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bitjerkers/linkage/internal/logging"
	"github.com/bitjerkers/linkage/internal/metrics"
)

// Executor runs a single invocation of a filter-management binary with the
// given ordered argument list. Implementations report success only when the
// command ran and exited zero.
type Executor interface {
	Execute(args []string) error
}

// CommandExecutor executes a real filter-management binary via os/exec.
// One instance is bound to one binary (iptables or ip6tables); the two
// protocol families maintain independent rule tables and must never share
// an executor.
type CommandExecutor struct {
	binary string
	logger *logging.Logger
}

// NewCommandExecutor returns an executor bound to the given binary.
func NewCommandExecutor(binary string, logger *logging.Logger) *CommandExecutor {
	if logger == nil {
		logger = logging.Default()
	}
	return &CommandExecutor{
		binary: binary,
		logger: logger.WithComponent("firewall"),
	}
}

// Binary returns the bound binary name.
func (e *CommandExecutor) Binary() string {
	return e.binary
}

// Execute runs the binary with args. A start failure is returned as a wrapped
// exec error; a non-zero exit becomes an *ExitError carrying the status code
// and the combined output.
func (e *CommandExecutor) Execute(args []string) error {
	e.logger.Debug("executing", "binary", e.binary, "args", strings.Join(args, " "))

	cmd := exec.Command(e.binary, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			metrics.Get().FirewallCommands.WithLabelValues(e.binary, "error").Inc()
			metrics.Get().FirewallErrors.WithLabelValues(e.binary, "exit").Inc()
			return &ExitError{
				Binary: e.binary,
				Code:   exitErr.ExitCode(),
				Output: strings.TrimSpace(string(out)),
			}
		}
		metrics.Get().FirewallCommands.WithLabelValues(e.binary, "error").Inc()
		metrics.Get().FirewallErrors.WithLabelValues(e.binary, "start").Inc()
		return fmt.Errorf("starting %s: %w", e.binary, err)
	}

	metrics.Get().FirewallCommands.WithLabelValues(e.binary, "ok").Inc()
	return nil
}

// binaryOnPath reports whether the given binary resolves on the search path.
func binaryOnPath(binary string) bool {
	_, err := exec.LookPath(binary)
	return err == nil
}
