package firewall

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustException(t *testing.T, host string, port uint16, proto Protocol) Exception {
	t.Helper()
	addr, err := netip.ParseAddr(host)
	require.NoError(t, err)
	return NewException(addr, port, proto)
}

func newRecordingBackend() (*IptablesBackend, *RecordingExecutor, *RecordingExecutor) {
	v4 := &RecordingExecutor{}
	v6 := &RecordingExecutor{}
	return NewIptablesBackendWith(v4, v6, nil), v4, v6
}

func TestPreConnectBaseProgram(t *testing.T) {
	b, v4, v6 := newRecordingBackend()

	require.NoError(t, b.PreConnect(nil))

	want := [][]string{
		{"-P", "INPUT", "DROP"},
		{"-P", "OUTPUT", "DROP"},
		{"-P", "FORWARD", "DROP"},
		{"-A", "INPUT", "-m", "state", "--state", "RELATED,ESTABLISHED", "-j", "ACCEPT"},
		{"-A", "INPUT", "-m", "state", "--state", "INVALID", "-j", "DROP"},
		{"-A", "OUTPUT", "-m", "state", "--state", "RELATED,ESTABLISHED", "-j", "ACCEPT"},
		{"-A", "OUTPUT", "-m", "state", "--state", "INVALID", "-j", "DROP"},
		{"-A", "INPUT", "-i", "lo", "-j", "ACCEPT"},
		{"-A", "OUTPUT", "-o", "lo", "-j", "ACCEPT"},
		{"-N", "in_accept"},
		{"-A", "INPUT", "-m", "state", "--state", "NEW,UNTRACKED", "-j", "in_accept"},
		{"-N", "out_accept"},
		{"-A", "OUTPUT", "-m", "state", "--state", "NEW,UNTRACKED", "-j", "out_accept"},
	}
	assert.Equal(t, want, v4.Commands, "IPv4 base program")
	assert.Equal(t, want, v6.Commands, "IPv6 base program")
}

func TestPreConnectExceptionRouting(t *testing.T) {
	b, v4, v6 := newRecordingBackend()

	exceptions := []Exception{
		mustException(t, "1.1.1.1", 1337, ProtocolTCP),
		mustException(t, "127.0.0.1", 4200, ProtocolUDP),
		mustException(t, "2001:db8::1", 2020, ProtocolUDP),
	}
	require.NoError(t, b.PreConnect(exceptions))

	v4Allows := allowRules(v4.Commands)
	require.Len(t, v4Allows, 2, "IPv4 exceptions must only reach the IPv4 executor")
	assert.Equal(t, []string{
		"-A", "out_accept", "-d", "1.1.1.1/32", "-p", "tcp", "-m", "tcp",
		"--dport", "1337", "-j", "ACCEPT",
	}, v4Allows[0])
	assert.Equal(t, []string{
		"-A", "out_accept", "-d", "127.0.0.1/32", "-p", "udp", "-m", "udp",
		"--dport", "4200", "-j", "ACCEPT",
	}, v4Allows[1])

	v6Allows := allowRules(v6.Commands)
	require.Len(t, v6Allows, 1, "no fourth exception rule may be issued")
	assert.Equal(t, []string{
		"-A", "out_accept", "-d", "2001:db8::1/128", "-p", "udp", "-m", "udp",
		"--dport", "2020", "-j", "ACCEPT",
	}, v6Allows[0])
}

// allowRules extracts the exception allow rules ("-A out_accept -d ...").
func allowRules(cmds [][]string) [][]string {
	var out [][]string
	for _, c := range cmds {
		if len(c) > 3 && c[0] == "-A" && c[1] == "out_accept" && c[2] == "-d" {
			out = append(out, c)
		}
	}
	return out
}

func TestPreConnectDenyBeforeAllow(t *testing.T) {
	b, v4, v6 := newRecordingBackend()

	exceptions := []Exception{
		mustException(t, "10.0.0.1", 1194, ProtocolUDP),
		mustException(t, "2001:db8::2", 443, ProtocolTCP),
	}
	require.NoError(t, b.PreConnect(exceptions))

	for name, cmds := range map[string][][]string{"v4": v4.Commands, "v6": v6.Commands} {
		denyIdx := -1
		firstAllowIdx := -1
		for i, c := range cmds {
			if c[0] == "-P" && c[len(c)-1] == "DROP" {
				denyIdx = i
			}
			if firstAllowIdx == -1 && c[len(c)-1] == "ACCEPT" {
				firstAllowIdx = i
			}
		}
		require.NotEqual(t, -1, denyIdx, "%s: no default-deny issued", name)
		require.NotEqual(t, -1, firstAllowIdx, "%s: no allow rule issued", name)
		assert.Less(t, denyIdx, firstAllowIdx,
			"%s: default-deny must be installed before any allow rule", name)
	}
}

func TestPreConnectStopsOnFirstError(t *testing.T) {
	bang := errors.New("bang")
	v4 := &RecordingExecutor{FailOn: func(args []string) error {
		if args[0] == "-N" && args[1] == "in_accept" {
			return bang
		}
		return nil
	}}
	v6 := &RecordingExecutor{}
	b := NewIptablesBackendWith(v4, v6, nil)

	err := b.PreConnect([]Exception{mustException(t, "1.2.3.4", 53, ProtocolUDP)})
	require.ErrorIs(t, err, bang)

	assert.Empty(t, allowRules(v4.Commands), "no allow rule after a failed command")
	assert.Empty(t, v6.Commands, "remaining commands must be skipped")
}

func TestPostConnect(t *testing.T) {
	b, v4, v6 := newRecordingBackend()

	require.NoError(t, b.PostConnect("tun0"))

	want := [][]string{{"-A", "out_accept", "-o", "tun0", "-j", "ACCEPT"}}
	assert.Equal(t, want, v4.Commands)
	assert.Equal(t, want, v6.Commands)
}

func TestPostConnectError(t *testing.T) {
	v4 := new(MockExecutor)
	v6 := new(MockExecutor)
	v4.On("Execute", []string{"-A", "out_accept", "-o", "tun3", "-j", "ACCEPT"}).
		Return(&ExitError{Binary: "iptables", Code: 1})
	b := NewIptablesBackendWith(v4, v6, nil)

	err := b.PostConnect("tun3")
	require.Error(t, err)
	assert.True(t, IsExitError(err))
	v4.AssertExpectations(t)
	v6.AssertNotCalled(t, "Execute")
}

func TestDisconnectProgram(t *testing.T) {
	b, v4, v6 := newRecordingBackend()

	require.NoError(t, b.Disconnect())

	want := [][]string{
		{"-P", "INPUT", "ACCEPT"},
		{"-P", "OUTPUT", "ACCEPT"},
		{"-P", "FORWARD", "ACCEPT"},
		{"-F"},
		{"-X", "in_accept"},
		{"-X", "out_accept"},
	}
	assert.Equal(t, want, v4.Commands)
	assert.Equal(t, want, v6.Commands)
}

func TestDisconnectIdempotent(t *testing.T) {
	// Chains do not exist: the filter tool reports an error for -X, which
	// must not surface. This is exactly the "PreConnect never ran" case.
	failDeletes := func(args []string) error {
		if args[0] == "-X" {
			return &ExitError{Binary: "iptables", Code: 1, Output: "No chain/target/match by that name."}
		}
		return nil
	}
	v4 := &RecordingExecutor{FailOn: failDeletes}
	v6 := &RecordingExecutor{FailOn: failDeletes}
	b := NewIptablesBackendWith(v4, v6, nil)

	require.NoError(t, b.Disconnect())
	require.NoError(t, b.Disconnect(), "second teardown must look like the first")
}

func TestDisconnectSurfacesRealFailures(t *testing.T) {
	v4 := &RecordingExecutor{FailOn: func(args []string) error {
		if args[0] == "-F" {
			return &ExitError{Binary: "iptables", Code: 4}
		}
		return nil
	}}
	v6 := &RecordingExecutor{}
	b := NewIptablesBackendWith(v4, v6, nil)

	err := b.Disconnect()
	require.Error(t, err)

	// Teardown is best effort: the remaining commands still ran.
	assert.Equal(t, [][]string{
		{"-P", "INPUT", "ACCEPT"},
		{"-P", "OUTPUT", "ACCEPT"},
		{"-P", "FORWARD", "ACCEPT"},
		{"-X", "in_accept"},
		{"-X", "out_accept"},
	}, v4.Commands)
	assert.Len(t, v6.Commands, 6, "second family still torn down fully")
}

func TestIdentifier(t *testing.T) {
	b, _, _ := newRecordingBackend()
	assert.Equal(t, "iptables", b.Identifier())
}
