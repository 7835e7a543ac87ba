package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bitjerkers/linkage/internal/brand"
	"github.com/bitjerkers/linkage/internal/config"
	"github.com/bitjerkers/linkage/internal/connection"
	"github.com/bitjerkers/linkage/internal/firewall"
	"github.com/bitjerkers/linkage/internal/leaks"
	"github.com/bitjerkers/linkage/internal/logging"
	"github.com/bitjerkers/linkage/internal/monitor"
	"github.com/bitjerkers/linkage/internal/ovpn"
	"github.com/bitjerkers/linkage/internal/vpn"
)

// ConnectOptions carries the connect subcommand's flags.
type ConnectOptions struct {
	// File is the tunnel client configuration, required.
	File string

	// ConfigFile is the linkage config; "" means the default path,
	// which may be absent.
	ConfigFile string

	// DNSRequests overrides the configured probe sample size when > 0.
	DNSRequests int

	// MetricsListen, when set, exposes prometheus metrics on this
	// address for the lifetime of the connection attempt.
	MetricsListen string
}

// RunConnect establishes a kill-switched VPN connection and blocks until
// interrupted or a leak is detected.
func RunConnect(opts ConnectOptions) error {
	logger := logging.WithComponent("connect")

	if opts.File == "" {
		return fmt.Errorf("usage: %s connect -file <client config> [-config <file>] [-dns-requests <n>]", brand.LowerName)
	}

	cfg, err := loadConfig(opts.ConfigFile)
	if err != nil {
		return err
	}

	sampleSize := cfg.Leaks.DNSRequests
	if opts.DNSRequests > 0 {
		sampleSize = opts.DNSRequests
	}

	logger.Info("using tunnel configuration", "file", opts.File)
	parsed, err := ovpn.ParseFile(opts.File)
	if err != nil {
		return err
	}
	exceptions, err := parsed.Exceptions()
	if err != nil {
		return err
	}

	persisted, err := cfg.FirewallExceptions()
	if err != nil {
		return err
	}
	exceptions = append(exceptions, persisted...)
	if len(exceptions) == 0 {
		return fmt.Errorf("no remotes in %s and no configured exceptions; the kill switch would block the tunnel itself", opts.File)
	}

	registry := firewall.DefaultRegistry(logging.WithComponent("firewall"))
	backend, err := registry.FirstAvailable()
	if err != nil {
		return err
	}
	logger.Info("firewall backend selected", "backend", backend.Identifier())

	supervisor := vpn.NewSupervisor(cfg.VPN.ClientBinary, opts.File,
		vpn.WithInterfaceTimeout(cfg.VPN.InterfaceTimeout()),
		vpn.WithLogger(logging.WithComponent("vpn")))

	controller := connection.NewController(connection.Params{
		Backend:    backend,
		Detector:   newDetector(cfg),
		Supervisor: supervisor,
		Exceptions: exceptions,
		SampleSize: sampleSize,
		Monitor:    monitor.New(""),
		Logger:     logging.WithComponent("connection"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.MetricsListen != "" {
		go serveMetrics(ctx, opts.MetricsListen, logger)
	}

	return controller.Run(ctx)
}

// metricsHandler serves the prometheus registry under /metrics.
func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// serveMetrics runs the metrics listener until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string, logger *logging.Logger) {
	srv := &http.Server{Addr: addr, Handler: metricsHandler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listener started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics listener failed", "error", err)
	}
}

// loadConfig reads the given config file, or the default one when path
// is empty. A missing default file is not an error.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = brand.DefaultConfigPath()
		if _, err := os.Stat(path); err != nil {
			return config.Default(), nil
		}
	}
	return config.LoadFile(path)
}

// newDetector builds a leak detector honoring the config's endpoint and
// timeout overrides.
func newDetector(cfg *config.Config) *leaks.Detector {
	opts := leaks.Options{Timeout: cfg.Leaks.Timeout()}
	opts.Endpoints.DNSDetect = cfg.Leaks.DNSDetectEndpoint
	opts.Endpoints.IPv4Info = cfg.Leaks.IPv4InfoEndpoint
	opts.Endpoints.IPv6Info = cfg.Leaks.IPv6InfoEndpoint
	return leaks.NewDetector(opts, logging.WithComponent("leaks"))
}
