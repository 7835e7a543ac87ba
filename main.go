package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/bitjerkers/linkage/cmd"
	"github.com/bitjerkers/linkage/internal/brand"
	"github.com/bitjerkers/linkage/internal/connection"
	"github.com/bitjerkers/linkage/internal/logging"
)

const (
	exitGeneric      = 1
	exitRootRequired = 3
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitGeneric)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = levelFromEnv()
	logging.SetDefault(logging.New(logCfg))

	switch os.Args[1] {
	case "connect":
		connectFlags := flag.NewFlagSet("connect", flag.ExitOnError)
		file := connectFlags.String("file", "", "Tunnel client configuration file (required)")
		connectFlags.StringVar(file, "f", "", "Tunnel client configuration file (short)")

		configFile := connectFlags.String("config", "", "Linkage configuration file")
		connectFlags.StringVar(configFile, "c", "", "Linkage configuration file (short)")

		dnsRequests := connectFlags.Int("dns-requests", 0, "DNS probe sample size per snapshot")
		metricsListen := connectFlags.String("metrics-listen", "", "Expose prometheus metrics on this address")
		connectFlags.Parse(os.Args[2:])

		fatal(cmd.RunConnect(cmd.ConnectOptions{
			File:          *file,
			ConfigFile:    *configFile,
			DNSRequests:   *dnsRequests,
			MetricsListen: *metricsListen,
		}))

	case "ipinfo":
		ipinfoFlags := flag.NewFlagSet("ipinfo", flag.ExitOnError)
		configFile := ipinfoFlags.String("config", "", "Linkage configuration file")
		ipinfoFlags.Parse(os.Args[2:])

		fatal(cmd.RunIPInfo(*configFile))

	case "dnstest":
		dnstestFlags := flag.NewFlagSet("dnstest", flag.ExitOnError)
		configFile := dnstestFlags.String("config", "", "Linkage configuration file")
		n := dnstestFlags.Int("n", 0, "DNS probe sample size")
		direct := dnstestFlags.Bool("direct", false, "Query a whoami zone over DNS instead of HTTP")
		dnstestFlags.Parse(os.Args[2:])

		fatal(cmd.RunDNSTest(*configFile, *n, *direct))

	case "version":
		fmt.Printf("%s version %s\n", brand.Name, brand.Version)
		fmt.Printf("Build: %s\n", brand.BuildTime)

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(exitGeneric)
	}
}

// fatal prints the error and exits with the code matching its cause.
func fatal(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if errors.Is(err, connection.ErrRootRequired) {
		os.Exit(exitRootRequired)
	}
	os.Exit(exitGeneric)
}

func levelFromEnv() logging.Level {
	switch os.Getenv(brand.ConfigEnvPrefix + "_LOG_LEVEL") {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func printUsage() {
	fmt.Printf("%s - VPN connection manager with a firewall kill switch\n\n", brand.Name)
	fmt.Println("Usage:")
	fmt.Printf("  %s <command> [options]\n\n", brand.LowerName)
	fmt.Println("Commands:")
	fmt.Println("  connect   Establish a kill-switched VPN connection")
	fmt.Println("            -file <path>         tunnel client configuration (required)")
	fmt.Println("            -config <path>       linkage configuration file")
	fmt.Println("            -dns-requests <n>    DNS probe sample size")
	fmt.Println("            -metrics-listen <a>  expose prometheus metrics on this address")
	fmt.Println("  ipinfo    Show the public IPv4/IPv6 records for this host")
	fmt.Println("  dnstest   Discover which DNS resolvers serve this host")
	fmt.Println("            -n <n>               DNS probe sample size")
	fmt.Println("            -direct              query over DNS instead of HTTP")
	fmt.Println("  version   Print version information")
	fmt.Println()
	fmt.Printf("The connect command must run as root; it exits with code %d otherwise.\n", exitRootRequired)
}
