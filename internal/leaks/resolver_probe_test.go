package leaks

import (
	"context"
	"net"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startDNSServer runs an in-process DNS server answering every TXT query
// with the given strings and returns its address.
func startDNSServer(t *testing.T, txts ...string) string {
	t.Helper()

	mux := dns.NewServeMux()
	mux.HandleFunc(".", func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		if len(txts) > 0 {
			m.Answer = append(m.Answer, &dns.TXT{
				Hdr: dns.RR_Header{
					Name:   r.Question[0].Name,
					Rrtype: dns.TypeTXT,
					Class:  dns.ClassINET,
					Ttl:    0,
				},
				Txt: txts,
			})
		}
		_ = w.WriteMsg(m)
	})

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &dns.Server{PacketConn: pc, Handler: mux}
	go func() { _ = srv.ActivateAndServe() }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	return pc.LocalAddr().String()
}

func TestResolverProbe(t *testing.T) {
	p := NewResolverProbe("", nil)
	p.server = startDNSServer(t, "9.9.9.9")

	addr, err := p.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "9.9.9.9", addr.String())
}

func TestResolverProbeSkipsNonAddressStrings(t *testing.T) {
	p := NewResolverProbe("", nil)
	p.server = startDNSServer(t, "edns0-client-subnet 198.51.100.0/24", "2001:db8::9")

	addr, err := p.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2001:db8::9", addr.String())
}

func TestResolverProbeEmptyAnswer(t *testing.T) {
	p := NewResolverProbe("", nil)
	p.server = startDNSServer(t)

	_, err := p.Probe(context.Background())
	assert.ErrorContains(t, err, "no address in TXT answer")
}

func TestResolverProbeMissingResolvConf(t *testing.T) {
	p := NewResolverProbe("", nil)
	p.resolvConf = "/nonexistent/resolv.conf"

	_, err := p.Probe(context.Background())
	assert.ErrorContains(t, err, "resolver configuration")
}

func TestResolverProbeOnPool(t *testing.T) {
	p := NewResolverProbe("", nil)
	p.server = startDNSServer(t, "9.9.9.9")

	addrs, err := runProbePool(context.Background(), 3, 5, p.Probe)
	require.NoError(t, err)
	require.Len(t, addrs, 1)
	assert.Equal(t, "9.9.9.9", addrs[0].String())
}
