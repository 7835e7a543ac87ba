package firewall

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"

	"github.com/bitjerkers/linkage/internal/logging"
)

const (
	// IptablesIdentifier is the registry tag of this backend.
	IptablesIdentifier = "iptables"

	iptablesBinary  = "iptables"
	ip6tablesBinary = "ip6tables"

	// inAcceptChain accepts new/untracked inbound connections.
	inAcceptChain = "in_accept"
	// outAcceptChain accepts new/untracked outbound connections.
	outAcceptChain = "out_accept"
)

// IptablesBackend drives the kill switch through the iptables and ip6tables
// binaries. The two rule tables are independent, so the backend carries one
// executor per address family and replays the same base program on each.
type IptablesBackend struct {
	v4     Executor
	v6     Executor
	logger *logging.Logger
}

// NewIptablesBackend returns a backend using real iptables/ip6tables
// executors.
func NewIptablesBackend(logger *logging.Logger) *IptablesBackend {
	return NewIptablesBackendWith(
		NewCommandExecutor(iptablesBinary, logger),
		NewCommandExecutor(ip6tablesBinary, logger),
		logger,
	)
}

// NewIptablesBackendWith returns a backend with explicit executors. Tests
// substitute recording or mock executors here.
func NewIptablesBackendWith(v4, v6 Executor, logger *logging.Logger) *IptablesBackend {
	if logger == nil {
		logger = logging.Default()
	}
	return &IptablesBackend{
		v4:     v4,
		v6:     v6,
		logger: logger.WithComponent("firewall"),
	}
}

// Identifier returns "iptables".
func (b *IptablesBackend) Identifier() string {
	return IptablesIdentifier
}

// Available reports whether this host can run the backend: Linux with both
// family binaries on the search path.
func (b *IptablesBackend) Available() bool {
	return runtime.GOOS == "linux" &&
		binaryOnPath(iptablesBinary) &&
		binaryOnPath(ip6tablesBinary)
}

// PreConnect installs the kill switch. For each address family it sets the
// default policy to DROP on INPUT, OUTPUT and FORWARD, allows
// related/established traffic, drops invalid packets, allows loopback,
// creates the in_accept/out_accept chains and hooks them up for new and
// untracked connections, and finally appends one allow rule per exception of
// that family. Default-deny is issued strictly before any allow rule; on the
// first failure the remaining commands are skipped and the error surfaces.
func (b *IptablesBackend) PreConnect(exceptions []Exception) error {
	families := []struct {
		exec Executor
		ipv4 bool
	}{
		{b.v4, true},
		{b.v6, false},
	}

	for _, fam := range families {
		for _, args := range preConnectProgram() {
			if err := fam.exec.Execute(args); err != nil {
				return fmt.Errorf("applying pre-connect rules: %w", err)
			}
		}
		for _, e := range exceptions {
			if e.IsIPv4() != fam.ipv4 {
				continue
			}
			args := []string{
				"-A", outAcceptChain,
				"-d", e.HostCIDR(),
				"-p", string(e.Protocol),
				"-m", string(e.Protocol),
				"--dport", strconv.Itoa(int(e.Port)),
				"-j", "ACCEPT",
			}
			if err := fam.exec.Execute(args); err != nil {
				return fmt.Errorf("allowing exception %s: %w", e, err)
			}
			b.logger.Debug("exception allowed", "endpoint", e.String())
		}
	}

	b.logger.Info("kill switch engaged", "exceptions", len(exceptions))
	return nil
}

// PostConnect appends one allow rule per family permitting all outbound
// traffic on the tunnel interface.
func (b *IptablesBackend) PostConnect(ifaceName string) error {
	args := []string{"-A", outAcceptChain, "-o", ifaceName, "-j", "ACCEPT"}
	for _, exec := range []Executor{b.v4, b.v6} {
		if err := exec.Execute(args); err != nil {
			return fmt.Errorf("allowing tunnel interface %s: %w", ifaceName, err)
		}
	}
	b.logger.Info("tunnel interface allowed", "interface", ifaceName)
	return nil
}

// Disconnect restores default-accept on all chains, flushes every rule and
// deletes the chains created by PreConnect. Every command is attempted even
// if an earlier one fails, so a partially applied PreConnect never leaves
// the host cut off. Deleting a chain that does not exist is not an error;
// that is what makes repeated calls indistinguishable from a single one.
func (b *IptablesBackend) Disconnect() error {
	var errs []error
	for _, exec := range []Executor{b.v4, b.v6} {
		for _, args := range disconnectProgram() {
			if err := exec.Execute(args); err != nil {
				if args[0] == "-X" && IsExitError(err) {
					// Chain was never created or is already gone.
					continue
				}
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restoring firewall: %w", errors.Join(errs...))
	}
	b.logger.Info("kill switch released")
	return nil
}

// preConnectProgram is the base deny program, identical for both families.
// Order matters: policies first, then the conntrack and loopback rules, then
// the accept chains.
func preConnectProgram() [][]string {
	cmds := [][]string{
		{"-P", "INPUT", "DROP"},
		{"-P", "OUTPUT", "DROP"},
		{"-P", "FORWARD", "DROP"},
	}
	for _, chain := range []string{"INPUT", "OUTPUT"} {
		cmds = append(cmds,
			[]string{"-A", chain, "-m", "state", "--state", "RELATED,ESTABLISHED", "-j", "ACCEPT"},
			[]string{"-A", chain, "-m", "state", "--state", "INVALID", "-j", "DROP"},
		)
	}
	cmds = append(cmds,
		[]string{"-A", "INPUT", "-i", "lo", "-j", "ACCEPT"},
		[]string{"-A", "OUTPUT", "-o", "lo", "-j", "ACCEPT"},
		[]string{"-N", inAcceptChain},
		[]string{"-A", "INPUT", "-m", "state", "--state", "NEW,UNTRACKED", "-j", inAcceptChain},
		[]string{"-N", outAcceptChain},
		[]string{"-A", "OUTPUT", "-m", "state", "--state", "NEW,UNTRACKED", "-j", outAcceptChain},
	)
	return cmds
}

// disconnectProgram restores the permissive default state.
func disconnectProgram() [][]string {
	return [][]string{
		{"-P", "INPUT", "ACCEPT"},
		{"-P", "OUTPUT", "ACCEPT"},
		{"-P", "FORWARD", "ACCEPT"},
		{"-F"},
		{"-X", inAcceptChain},
		{"-X", outAcceptChain},
	}
}
