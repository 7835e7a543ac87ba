package leaks

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// newHTTPClient returns a client optionally pinned to one protocol family.
// Pinning matters for the public-address lookups: the IPv4 endpoint must be
// reached over IPv4 and likewise for IPv6, otherwise the answer says nothing
// about that family's egress path.
func newHTTPClient(network string, timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 15 * time.Second,
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, addr)
		},
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
