// Package config provides HCL configuration handling for the connection
// manager: firewall exceptions, leak detection tuning and tunnel client
// settings.
package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/bitjerkers/linkage/internal/firewall"
)

// Config is the top-level structure for the connection manager configuration.
type Config struct {
	// Firewall exceptions that stay reachable while the kill switch is
	// engaged. VPN server endpoints derived from the tunnel config are
	// merged in separately at connect time.
	Exceptions []ExceptionBlock `hcl:"exception,block" json:"exceptions,omitempty"`

	Leaks *LeaksConfig `hcl:"leaks,block" json:"leaks,omitempty"`
	VPN   *VPNConfig   `hcl:"vpn,block" json:"vpn,omitempty"`
}

// ExceptionBlock is one host/port/protocol triple the firewall keeps open.
type ExceptionBlock struct {
	Host     string `hcl:"host,label" json:"host"`
	Port     uint16 `hcl:"port" json:"port"`
	Protocol string `hcl:"protocol,optional" json:"protocol,omitempty"`
}

// LeaksConfig tunes the leak detection engine.
type LeaksConfig struct {
	// DNSRequests is the requested DNS probe sample size. The engine
	// rounds it up to a whole number of probe batches.
	DNSRequests int `hcl:"dns_requests,optional" json:"dns_requests,omitempty"`

	// Endpoint overrides, mainly for self-hosted detection services.
	DNSDetectEndpoint string `hcl:"dns_detect_endpoint,optional" json:"dns_detect_endpoint,omitempty"`
	IPv4InfoEndpoint  string `hcl:"ipv4_info_endpoint,optional" json:"ipv4_info_endpoint,omitempty"`
	IPv6InfoEndpoint  string `hcl:"ipv6_info_endpoint,optional" json:"ipv6_info_endpoint,omitempty"`

	TimeoutSeconds int `hcl:"timeout_seconds,optional" json:"timeout_seconds,omitempty"`
}

// VPNConfig controls how the tunneling client subprocess is run.
type VPNConfig struct {
	// ClientBinary is the tunneling client executable. Defaults to
	// "openvpn" on PATH.
	ClientBinary string `hcl:"client_binary,optional" json:"client_binary,omitempty"`

	// InterfaceTimeoutSeconds bounds the wait for the client to report
	// its tunnel interface.
	InterfaceTimeoutSeconds int `hcl:"interface_timeout_seconds,optional" json:"interface_timeout_seconds,omitempty"`
}

// Default returns a config with all defaults applied and no exceptions.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// DefaultDNSRequests is the probe sample size used when the config does
// not specify one.
const DefaultDNSRequests = 25

// DefaultInterfaceTimeout bounds the tunnel interface wait.
const DefaultInterfaceTimeout = 30 * time.Second

// ApplyDefaults fills in zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Leaks == nil {
		c.Leaks = &LeaksConfig{}
	}
	if c.Leaks.DNSRequests == 0 {
		c.Leaks.DNSRequests = DefaultDNSRequests
	}
	if c.VPN == nil {
		c.VPN = &VPNConfig{}
	}
	if c.VPN.ClientBinary == "" {
		c.VPN.ClientBinary = "openvpn"
	}
	if c.VPN.InterfaceTimeoutSeconds == 0 {
		c.VPN.InterfaceTimeoutSeconds = int(DefaultInterfaceTimeout / time.Second)
	}
	for i := range c.Exceptions {
		if c.Exceptions[i].Protocol == "" {
			c.Exceptions[i].Protocol = "udp"
		}
	}
}

// InterfaceTimeout returns the configured interface wait as a duration.
func (c *VPNConfig) InterfaceTimeout() time.Duration {
	if c == nil || c.InterfaceTimeoutSeconds <= 0 {
		return DefaultInterfaceTimeout
	}
	return time.Duration(c.InterfaceTimeoutSeconds) * time.Second
}

// Timeout returns the configured leak probe timeout, zero meaning the
// engine default.
func (c *LeaksConfig) Timeout() time.Duration {
	if c == nil || c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validate checks the config for problems after defaults are applied.
func (c *Config) Validate() error {
	var errs ValidationErrors

	for i, ex := range c.Exceptions {
		field := fmt.Sprintf("exception[%d] %q", i, ex.Host)
		if _, err := netip.ParseAddr(ex.Host); err != nil {
			errs = append(errs, ValidationError{Field: field, Message: "host is not an IP address"})
		}
		if ex.Port == 0 {
			errs = append(errs, ValidationError{Field: field, Message: "port must be non-zero"})
		}
		if _, err := firewall.ParseProtocol(ex.Protocol); err != nil {
			errs = append(errs, ValidationError{Field: field, Message: err.Error()})
		}
	}

	if c.Leaks != nil && c.Leaks.DNSRequests < 0 {
		errs = append(errs, ValidationError{Field: "leaks.dns_requests", Message: "must not be negative"})
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// FirewallExceptions converts the configured exception blocks into
// firewall exceptions. Validate should be called first; parse failures
// here are still reported.
func (c *Config) FirewallExceptions() ([]firewall.Exception, error) {
	out := make([]firewall.Exception, 0, len(c.Exceptions))
	for _, ex := range c.Exceptions {
		fe, err := firewall.ParseException(ex.Host, ex.Port, ex.Protocol)
		if err != nil {
			return nil, fmt.Errorf("exception %q: %w", ex.Host, err)
		}
		out = append(out, fe)
	}
	return out, nil
}
