package cmd

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"text/tabwriter"

	"github.com/bitjerkers/linkage/internal/logging"
)

// RunIPInfo prints the host's public IPv4 and IPv6 records.
func RunIPInfo(configFile string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	detector := newDetector(cfg)
	v4, v6, err := detector.IPInfo(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\tIPv4\tIPv6")
	fmt.Fprintf(w, "Address\t%s\t%s\n", v4.IP, v6.IP)
	fmt.Fprintf(w, "Country\t%s (%s)\t%s (%s)\n", v4.CountryName, v4.CountryCode, v6.CountryName, v6.CountryCode)
	fmt.Fprintf(w, "Region\t%s\t%s\n", v4.RegionName, v6.RegionName)
	fmt.Fprintf(w, "City\t%s\t%s\n", v4.CityName, v6.CityName)
	fmt.Fprintf(w, "Time zone\t%s\t%s\n", v4.TimeZone, v6.TimeZone)
	return w.Flush()
}

// RunDNSTest discovers the resolvers serving the host and prints them.
// The direct strategy queries a whoami zone over DNS instead of using
// the HTTP leak-test endpoint.
func RunDNSTest(configFile string, sampleSize int, direct bool) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	if sampleSize <= 0 {
		sampleSize = cfg.Leaks.DNSRequests
	}

	detector := newDetector(cfg)
	ctx := context.Background()

	var resolvers []netip.Addr
	if direct {
		resolvers, err = detector.DNSTestDirect(ctx, sampleSize)
	} else {
		resolvers, err = detector.DNSTest(ctx, sampleSize)
	}
	if err != nil {
		return err
	}

	logging.Default().Info("resolver discovery finished", "resolvers", len(resolvers))
	for _, r := range resolvers {
		fmt.Println(r)
	}
	return nil
}
