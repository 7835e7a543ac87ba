package leaks

import (
	"context"
	"net/netip"
	"slices"
	"time"

	"github.com/bitjerkers/linkage/internal/metrics"
)

// Snapshot captures the host's externally visible network identity at one
// point in time: both public addresses and the set of resolvers in use.
// A connection attempt takes two: a baseline before the firewall is touched
// and a second one after the tunnel is up.
type Snapshot struct {
	V4        AddressInfo
	V6        AddressInfo
	Resolvers []netip.Addr
	Taken     time.Time
}

// Result is the verdict from comparing two snapshots.
type Result struct {
	DNSLeak bool
	IPLeak  bool
}

// Leaking reports whether either leak condition holds.
func (r Result) Leaking() bool {
	return r.DNSLeak || r.IPLeak
}

// Snapshot captures public addresses and resolvers. sampleSize controls the
// resolver discovery; see DNSTest for its rounding behavior.
func (d *Detector) Snapshot(ctx context.Context, sampleSize int) (Snapshot, error) {
	start := time.Now()

	v4, v6, err := d.IPInfo(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	resolvers, err := d.DNSTest(ctx, sampleSize)
	if err != nil {
		return Snapshot{}, err
	}

	metrics.Get().SnapshotDurationMs.Observe(float64(time.Since(start).Milliseconds()))
	return Snapshot{V4: v4, V6: v6, Resolvers: resolvers, Taken: start}, nil
}

// Compare evaluates the leak conditions between a baseline and a
// post-connect snapshot. A DNS leak is declared when any baseline resolver
// still appears after connecting; an IP leak when either public address is
// unchanged.
func Compare(baseline, after Snapshot) Result {
	var res Result

	for _, r := range after.Resolvers {
		if slices.Contains(baseline.Resolvers, r) {
			res.DNSLeak = true
			break
		}
	}

	res.IPLeak = (after.V4.IP != "" && after.V4.IP == baseline.V4.IP) ||
		(after.V6.IP != "" && after.V6.IP == baseline.V6.IP)

	return res
}
