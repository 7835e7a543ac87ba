package leaks

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanDNSTest(t *testing.T) {
	tests := []struct {
		sampleSize  int
		wantTotal   int
		wantWorkers int
	}{
		{25, 25, 5},
		{100, 100, 20},
		{74, 75, 15},
		{76, 80, 16},
		{79, 80, 16},
		{0, 0, 0},
		{1, 5, 1},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("size_%d", tc.sampleSize), func(t *testing.T) {
			plan := planDNSTest(tc.sampleSize)
			assert.Equal(t, tc.wantTotal, plan.Total, "total")
			assert.Equal(t, RequestsPerProbeWorker, plan.RequestsPerProbe, "requests per probe")
			assert.Equal(t, tc.wantWorkers, plan.Workers, "workers")

			// Total is the smallest multiple of RequestsPerProbeWorker that
			// is >= the requested size.
			assert.GreaterOrEqual(t, plan.Total, tc.sampleSize)
			assert.Zero(t, plan.Total%RequestsPerProbeWorker)
			assert.Less(t, plan.Total-tc.sampleSize, RequestsPerProbeWorker)
		})
	}
}

func TestRandomLabel(t *testing.T) {
	for i := 0; i < 1000; i++ {
		label := randomLabel()
		require.Len(t, label, 40)
		for _, c := range label {
			ok := (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
			require.True(t, ok, "label %q contains %q", label, c)
		}
	}
}

func TestDNSTestAgainstServer(t *testing.T) {
	// Hand out a small set of resolver addresses round-robin, so the
	// result must come back deduplicated and sorted.
	var n atomic.Int64
	resolvers := []string{"9.9.9.9", "1.0.0.1", "8.8.8.8"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		label := r.URL.Query().Get("label")
		if len(label) != 40 {
			http.Error(w, "bad label", http.StatusBadRequest)
			return
		}
		i := n.Add(1)
		fmt.Fprintf(w, "  %s\n", resolvers[int(i)%len(resolvers)])
	}))
	defer srv.Close()

	d := NewDetector(Options{
		Endpoints: Endpoints{
			DNSDetect: srv.URL + "/dnsdetect/?label=%s",
		},
		DisableFamilyPinning: true,
	}, nil)

	got, err := d.DNSTest(context.Background(), 12)
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, "1.0.0.1", got[0].String())
	assert.Equal(t, "8.8.8.8", got[1].String())
	assert.Equal(t, "9.9.9.9", got[2].String())
}

func TestDNSTestAbortsOnProbeFailure(t *testing.T) {
	var n atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) == 3 {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, "9.9.9.9")
	}))
	defer srv.Close()

	d := NewDetector(Options{
		Endpoints:            Endpoints{DNSDetect: srv.URL + "/?label=%s"},
		DisableFamilyPinning: true,
	}, nil)

	got, err := d.DNSTest(context.Background(), 10)
	require.Error(t, err, "a failed probe must abort the whole sample")
	assert.Nil(t, got, "no partial results")
}

func TestDNSTestRejectsGarbageBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>not an ip</html>")
	}))
	defer srv.Close()

	d := NewDetector(Options{
		Endpoints:            Endpoints{DNSDetect: srv.URL + "/?label=%s"},
		DisableFamilyPinning: true,
	}, nil)

	_, err := d.DNSTest(context.Background(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing resolver address")
}

func TestIPInfo(t *testing.T) {
	v4srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"country_code":"DE","country_name":"Germany","city_name":"Berlin",
			"latitude":52.52,"longitude":13.405,"accuracy_radius":50,
			"time_zone":"Europe/Berlin","ip":"203.0.113.7"}`)
	}))
	defer v4srv.Close()
	v6srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"country_code":"DE","ip":"2001:db8::7"}`)
	}))
	defer v6srv.Close()

	d := NewDetector(Options{
		Endpoints: Endpoints{
			IPv4Info: v4srv.URL,
			IPv6Info: v6srv.URL,
		},
		DisableFamilyPinning: true,
	}, nil)

	v4, v6, err := d.IPInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", v4.IP)
	assert.Equal(t, "Germany", v4.CountryName)
	assert.Equal(t, 52.52, v4.Latitude)
	assert.Equal(t, "2001:db8::7", v6.IP)
}

func TestIPInfoFailureIsHard(t *testing.T) {
	v4srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ip":"203.0.113.7"}`)
	}))
	defer v4srv.Close()
	v6srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no route", http.StatusServiceUnavailable)
	}))
	defer v6srv.Close()

	d := NewDetector(Options{
		Endpoints:            Endpoints{IPv4Info: v4srv.URL, IPv6Info: v6srv.URL},
		DisableFamilyPinning: true,
	}, nil)

	_, _, err := d.IPInfo(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "ipv6"), "failure must name the family: %v", err)
}
