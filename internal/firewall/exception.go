package firewall

import (
	"fmt"
	"net/netip"
	"strings"
)

// Protocol is the transport protocol of a firewall exception.
type Protocol string

const (
	ProtocolTCP Protocol = "tcp"
	ProtocolUDP Protocol = "udp"
)

// ParseProtocol parses a protocol name, case-insensitively.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tcp", "tcp-client", "tcp4", "tcp6":
		return ProtocolTCP, nil
	case "udp", "udp4", "udp6":
		return ProtocolUDP, nil
	default:
		return "", fmt.Errorf("unknown protocol %q", s)
	}
}

// Exception is an explicitly allowed remote endpoint. While the kill switch
// is active, new outbound connections are only permitted to exceptions;
// typically these are the VPN servers themselves. The value is immutable and
// scoped to one connection attempt.
type Exception struct {
	Host     netip.Addr
	Port     uint16
	Protocol Protocol
}

// NewException builds an Exception value.
func NewException(host netip.Addr, port uint16, proto Protocol) Exception {
	return Exception{Host: host, Port: port, Protocol: proto}
}

// ParseException builds an Exception from string fields, as found in the
// persisted configuration or in VPN-config remote directives.
func ParseException(host string, port uint16, proto string) (Exception, error) {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return Exception{}, fmt.Errorf("parsing exception host: %w", err)
	}
	p, err := ParseProtocol(proto)
	if err != nil {
		return Exception{}, err
	}
	return Exception{Host: addr.Unmap(), Port: port, Protocol: p}, nil
}

// IsIPv4 reports whether the exception addresses the IPv4 rule table.
func (e Exception) IsIPv4() bool {
	return e.Host.Unmap().Is4()
}

// HostCIDR returns the host as a single-address CIDR for rule matching
// (/32 for IPv4, /128 for IPv6).
func (e Exception) HostCIDR() string {
	if e.IsIPv4() {
		return e.Host.Unmap().String() + "/32"
	}
	return e.Host.String() + "/128"
}

func (e Exception) String() string {
	return fmt.Sprintf("%s:%d/%s", e.Host, e.Port, e.Protocol)
}
