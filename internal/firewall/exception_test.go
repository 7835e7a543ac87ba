package firewall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProtocol(t *testing.T) {
	tests := []struct {
		in      string
		want    Protocol
		wantErr bool
	}{
		{"tcp", ProtocolTCP, false},
		{"TCP", ProtocolTCP, false},
		{"tcp-client", ProtocolTCP, false},
		{"udp", ProtocolUDP, false},
		{" UDP ", ProtocolUDP, false},
		{"udp4", ProtocolUDP, false},
		{"icmp", "", true},
		{"", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseProtocol(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseException(t *testing.T) {
	e, err := ParseException("1.1.1.1", 1337, "tcp")
	require.NoError(t, err)
	assert.True(t, e.IsIPv4())
	assert.Equal(t, "1.1.1.1/32", e.HostCIDR())
	assert.Equal(t, "1.1.1.1:1337/tcp", e.String())

	e, err = ParseException("2001:db8::1", 2020, "udp")
	require.NoError(t, err)
	assert.False(t, e.IsIPv4())
	assert.Equal(t, "2001:db8::1/128", e.HostCIDR())

	_, err = ParseException("not-an-ip", 80, "tcp")
	assert.Error(t, err)

	_, err = ParseException("1.1.1.1", 80, "gre")
	assert.Error(t, err)
}

func TestExceptionMappedV4(t *testing.T) {
	// An IPv4-mapped IPv6 literal still addresses the IPv4 table.
	e, err := ParseException("::ffff:192.0.2.1", 443, "tcp")
	require.NoError(t, err)
	assert.True(t, e.IsIPv4())
	assert.Equal(t, "192.0.2.1/32", e.HostCIDR())
}
