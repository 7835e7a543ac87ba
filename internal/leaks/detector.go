package leaks

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/bitjerkers/linkage/internal/brand"
	"github.com/bitjerkers/linkage/internal/logging"
	"github.com/bitjerkers/linkage/internal/metrics"
)

const (
	// DefaultDNSDetectEndpoint is the leak-test endpoint template. The %s is
	// replaced with a random label so neither DNS nor HTTP caches can answer.
	DefaultDNSDetectEndpoint = "https://%s.ipleak.net/dnsdetect/"
	// DefaultIPv4InfoEndpoint reports geolocation for the IPv4 egress address.
	DefaultIPv4InfoEndpoint = "https://ipv4.ipleak.net/json/"
	// DefaultIPv6InfoEndpoint reports geolocation for the IPv6 egress address.
	DefaultIPv6InfoEndpoint = "https://ipv6.ipleak.net/json/"

	// RequestsPerProbeWorker is how many sequential probes each pool worker
	// performs. Sample sizes are rounded up to a multiple of this.
	RequestsPerProbeWorker = 5

	labelLength  = 40
	labelCharset = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// Endpoints are the external services used for leak testing.
type Endpoints struct {
	DNSDetect string
	IPv4Info  string
	IPv6Info  string
}

// DefaultEndpoints returns the ipleak.net endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		DNSDetect: DefaultDNSDetectEndpoint,
		IPv4Info:  DefaultIPv4InfoEndpoint,
		IPv6Info:  DefaultIPv6InfoEndpoint,
	}
}

// Options configures a Detector.
type Options struct {
	Endpoints Endpoints
	Timeout   time.Duration

	// DisableFamilyPinning makes all requests use the default dialer. Only
	// useful in tests, where the loopback endpoints have a single family.
	DisableFamilyPinning bool
}

// Detector performs DNS resolver discovery and public address discovery.
type Detector struct {
	endpoints Endpoints
	logger    *logging.Logger
	userAgent string

	anyClient *http.Client
	v4Client  *http.Client
	v6Client  *http.Client
}

// NewDetector builds a Detector from options, filling in defaults.
func NewDetector(opts Options, logger *logging.Logger) *Detector {
	if logger == nil {
		logger = logging.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Endpoints.DNSDetect == "" {
		opts.Endpoints.DNSDetect = DefaultDNSDetectEndpoint
	}
	if opts.Endpoints.IPv4Info == "" {
		opts.Endpoints.IPv4Info = DefaultIPv4InfoEndpoint
	}
	if opts.Endpoints.IPv6Info == "" {
		opts.Endpoints.IPv6Info = DefaultIPv6InfoEndpoint
	}

	d := &Detector{
		endpoints: opts.Endpoints,
		logger:    logger.WithComponent("leaks"),
		userAgent: brand.UserAgent(brand.Version),
		anyClient: newHTTPClient("tcp", opts.Timeout),
	}
	if opts.DisableFamilyPinning {
		d.v4Client = d.anyClient
		d.v6Client = d.anyClient
	} else {
		d.v4Client = newHTTPClient("tcp4", opts.Timeout)
		d.v6Client = newHTTPClient("tcp6", opts.Timeout)
	}
	return d
}

// dnsTestPlan is the derived worker layout for one resolver discovery run.
type dnsTestPlan struct {
	Total            int
	RequestsPerProbe int
	Workers          int
}

// planDNSTest rounds the sample size up to the next multiple of
// RequestsPerProbeWorker so every worker performs the same number of probes.
// The effective sample can therefore exceed the requested one.
func planDNSTest(sampleSize int) dnsTestPlan {
	per := RequestsPerProbeWorker
	total := sampleSize
	if rem := total % per; rem != 0 {
		total += per - rem
	}
	return dnsTestPlan{
		Total:            total,
		RequestsPerProbe: per,
		Workers:          total / per,
	}
}

// DNSTest discovers the resolvers in use by issuing sampleSize randomized
// probes against the leak-test endpoint. The returned set is sorted and
// deduplicated. Any single probe failure aborts the run; partial data is
// never reported.
func (d *Detector) DNSTest(ctx context.Context, sampleSize int) ([]netip.Addr, error) {
	plan := planDNSTest(sampleSize)
	d.logger.Debug("starting dns test",
		"requested", sampleSize, "total", plan.Total, "workers", plan.Workers)

	addrs, err := runProbePool(ctx, plan.Workers, plan.RequestsPerProbe, d.probeDNSDetect)
	if err != nil {
		return nil, fmt.Errorf("dns test: %w", err)
	}
	d.logger.Info("dns test complete", "samples", plan.Total, "resolvers", len(addrs))
	return addrs, nil
}

// probeDNSDetect performs one resolver probe over HTTP: a GET against a
// uniquely labelled hostname whose response body is the address of the
// resolver that served the lookup.
func (d *Detector) probeDNSDetect(ctx context.Context) (netip.Addr, error) {
	url := fmt.Sprintf(d.endpoints.DNSDetect, randomLabel())
	body, err := d.getBody(ctx, d.anyClient, url)
	if err != nil {
		metrics.Get().ProbeErrors.WithLabelValues("dnsdetect").Inc()
		return netip.Addr{}, err
	}

	addr, err := netip.ParseAddr(strings.TrimSpace(body))
	if err != nil {
		metrics.Get().ProbeErrors.WithLabelValues("dnsdetect").Inc()
		return netip.Addr{}, fmt.Errorf("parsing resolver address: %w", err)
	}
	metrics.Get().ProbesTotal.WithLabelValues("dnsdetect", "ok").Inc()
	return addr, nil
}

// randomLabel returns a lowercase-alphanumeric label used as a unique
// subdomain per probe.
func randomLabel() string {
	b := make([]byte, labelLength)
	for i := range b {
		b[i] = labelCharset[rand.IntN(len(labelCharset))]
	}
	return string(b)
}

// getBody issues a GET and returns the response body as a string.
func (d *Detector) getBody(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("http status %d from %s", resp.StatusCode, url)
	}
	return string(body), nil
}
