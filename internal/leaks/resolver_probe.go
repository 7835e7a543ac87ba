package leaks

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/miekg/dns"

	"github.com/bitjerkers/linkage/internal/logging"
	"github.com/bitjerkers/linkage/internal/metrics"
)

// DefaultWhoamiName is a special zone whose authoritative servers answer TXT
// queries with the address the query arrived from. Asked through a recursive
// resolver, that is the resolver's egress address.
const DefaultWhoamiName = "o-o.myaddr.l.google.com."

// ResolverProbe discovers resolvers by talking DNS directly instead of going
// through HTTP. It asks the system resolver for a whoami TXT record; the
// answer is the egress address of whichever server actually performed the
// recursion. The probe satisfies ProbeFunc, so it runs on the same worker
// pool as the HTTP strategy.
type ResolverProbe struct {
	qname      string
	resolvConf string
	logger     *logging.Logger

	// server overrides the resolv.conf lookup when set, as host:port.
	server string
}

// NewResolverProbe builds a probe against the given whoami zone. An empty
// qname selects DefaultWhoamiName.
func NewResolverProbe(qname string, logger *logging.Logger) *ResolverProbe {
	if qname == "" {
		qname = DefaultWhoamiName
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ResolverProbe{
		qname:      dns.Fqdn(qname),
		resolvConf: "/etc/resolv.conf",
		logger:     logger.WithComponent("leaks"),
	}
}

// Probe performs one direct DNS query and returns the resolver egress
// address from the TXT answer.
func (p *ResolverProbe) Probe(ctx context.Context) (netip.Addr, error) {
	server := p.server
	if server == "" {
		var err error
		server, err = p.systemResolver()
		if err != nil {
			metrics.Get().ProbeErrors.WithLabelValues("resolver").Inc()
			return netip.Addr{}, err
		}
	}

	m := new(dns.Msg)
	m.SetQuestion(p.qname, dns.TypeTXT)

	c := new(dns.Client)
	r, _, err := c.ExchangeContext(ctx, m, server)
	if err != nil {
		metrics.Get().ProbeErrors.WithLabelValues("resolver").Inc()
		return netip.Addr{}, fmt.Errorf("querying %s: %w", p.qname, err)
	}
	if r.Rcode != dns.RcodeSuccess {
		metrics.Get().ProbeErrors.WithLabelValues("resolver").Inc()
		return netip.Addr{}, fmt.Errorf("query for %s returned %s", p.qname, dns.RcodeToString[r.Rcode])
	}

	for _, rr := range r.Answer {
		txt, ok := rr.(*dns.TXT)
		if !ok {
			continue
		}
		for _, s := range txt.Txt {
			// Some whoami zones answer "edns0-client-subnet a.b.c.d/nn"
			// alongside the plain address record.
			s = strings.TrimSpace(s)
			if addr, perr := netip.ParseAddr(s); perr == nil {
				metrics.Get().ProbesTotal.WithLabelValues("resolver", "ok").Inc()
				return addr, nil
			}
		}
	}

	metrics.Get().ProbeErrors.WithLabelValues("resolver").Inc()
	return netip.Addr{}, fmt.Errorf("no address in TXT answer for %s", p.qname)
}

// systemResolver returns the first configured nameserver as host:port.
func (p *ResolverProbe) systemResolver() (string, error) {
	cfg, err := dns.ClientConfigFromFile(p.resolvConf)
	if err != nil {
		return "", fmt.Errorf("reading resolver configuration: %w", err)
	}
	if len(cfg.Servers) == 0 {
		return "", fmt.Errorf("no nameservers configured in %s", p.resolvConf)
	}
	return net.JoinHostPort(cfg.Servers[0], cfg.Port), nil
}

// DNSTestDirect is DNSTest using the direct DNS strategy instead of HTTP.
func (d *Detector) DNSTestDirect(ctx context.Context, sampleSize int) ([]netip.Addr, error) {
	plan := planDNSTest(sampleSize)
	probe := NewResolverProbe("", d.logger)

	addrs, err := runProbePool(ctx, plan.Workers, plan.RequestsPerProbe, probe.Probe)
	if err != nil {
		return nil, fmt.Errorf("direct dns test: %w", err)
	}
	return addrs, nil
}
