// Package monitor watches an established tunnel by pinging a target
// through it and logging when it stops answering. It observes only; the
// connection controller decides nothing based on it.
package monitor

import (
	"context"
	"fmt"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"github.com/bitjerkers/linkage/internal/logging"
)

// DefaultInterval is the pause between liveness checks.
const DefaultInterval = 5 * time.Second

// DefaultTarget is pinged when no target is configured. It sits behind
// most VPN providers' tunnels and answers echo requests.
const DefaultTarget = "1.1.1.1"

// Monitor pings one target on a fixed interval.
type Monitor struct {
	target   string
	interval time.Duration
	logger   *logging.Logger

	// checkPing is swapped out in tests.
	checkPing func(target string) error
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval overrides the check interval.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(m *Monitor) { m.logger = logger }
}

// New builds a monitor for the given target, "" meaning DefaultTarget.
func New(target string, opts ...Option) *Monitor {
	if target == "" {
		target = DefaultTarget
	}
	m := &Monitor{
		target:    target,
		interval:  DefaultInterval,
		logger:    logging.Default().WithComponent("monitor"),
		checkPing: checkPing,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run checks the tunnel until ctx is cancelled, logging state changes.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info("tunnel monitoring started", "target", m.target, "interval", m.interval)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	up := true
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("tunnel monitoring stopped")
			return
		case <-ticker.C:
			err := m.checkPing(m.target)
			switch {
			case err != nil && up:
				up = false
				m.logger.Warn("tunnel stopped answering", "target", m.target, "error", err)
			case err == nil && !up:
				up = true
				m.logger.Info("tunnel answering again", "target", m.target)
			}
		}
	}
}

func checkPing(target string) error {
	pinger, err := probing.NewPinger(target)
	if err != nil {
		return fmt.Errorf("failed to create pinger: %w", err)
	}

	pinger.Count = 1
	pinger.Timeout = 1 * time.Second
	pinger.SetPrivileged(false)

	if err := pinger.Run(); err != nil {
		return err
	}
	if pinger.Statistics().PacketsRecv == 0 {
		return fmt.Errorf("packet loss")
	}
	return nil
}
