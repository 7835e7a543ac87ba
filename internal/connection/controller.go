// Package connection drives one VPN connection attempt end to end: it
// engages the firewall kill switch, supervises the tunneling client,
// verifies the tunnel against leak snapshots and tears everything down
// again on exit or failure. Firewall mutations are only ever issued from
// the controller, which keeps the security-relevant rule ordering on a
// single writer.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bitjerkers/linkage/internal/firewall"
	"github.com/bitjerkers/linkage/internal/leaks"
	"github.com/bitjerkers/linkage/internal/logging"
	"github.com/bitjerkers/linkage/internal/metrics"
)

// ErrRootRequired is returned before anything is touched when the
// process lacks the privileges to program the firewall.
var ErrRootRequired = errors.New("root privileges are required")

// ErrLeakDetected is returned when the post-connect snapshot shows the
// tunnel leaking; the firewall and subprocess are already torn down.
var ErrLeakDetected = errors.New("leak detected")

// Detector captures the host's externally visible network identity.
type Detector interface {
	Snapshot(ctx context.Context, sampleSize int) (leaks.Snapshot, error)
}

// Supervisor manages the tunneling client subprocess.
type Supervisor interface {
	Start() error
	WaitForInterface(ctx context.Context) (string, error)
	Terminate() error
}

// Monitor watches the established tunnel until its context is
// cancelled. Failures are reported through its own logging; the
// controller does not act on them.
type Monitor interface {
	Run(ctx context.Context)
}

// Params carries the controller's collaborators and settings.
type Params struct {
	Backend    firewall.Backend
	Detector   Detector
	Supervisor Supervisor

	// Exceptions is the merged allow list: remotes derived from the
	// tunnel config plus the persisted user exceptions.
	Exceptions []firewall.Exception

	// SampleSize is the requested DNS probe count per snapshot.
	SampleSize int

	// Monitor, when set, runs while the connection is up.
	Monitor Monitor

	Logger *logging.Logger

	// Geteuid is overridable for tests; nil means unix.Geteuid.
	Geteuid func() int
}

// Controller owns the connection lifecycle state machine.
type Controller struct {
	backend    firewall.Backend
	detector   Detector
	supervisor Supervisor
	exceptions []firewall.Exception
	sampleSize int
	monitor    Monitor
	logger     *logging.Logger
	geteuid    func() int

	mu    sync.Mutex
	state State
}

// NewController builds a controller in the Idle state.
func NewController(p Params) *Controller {
	c := &Controller{
		backend:    p.Backend,
		detector:   p.Detector,
		supervisor: p.Supervisor,
		exceptions: p.Exceptions,
		sampleSize: p.SampleSize,
		monitor:    p.Monitor,
		logger:     p.Logger,
		geteuid:    p.Geteuid,
	}
	if c.logger == nil {
		c.logger = logging.Default().WithComponent("connection")
	}
	if c.geteuid == nil {
		c.geteuid = unix.Geteuid
	}
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) transition(to State) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()

	c.logger.Info("state transition", "from", from.String(), "to", to.String())
	metrics.Get().ConnectionState.Set(float64(to))
}

// Run executes one full connection attempt and blocks while connected
// until ctx is cancelled. On every failure after the firewall has been
// touched it tears the kill switch down again before returning; the
// host is never left in default-deny.
func (c *Controller) Run(ctx context.Context) error {
	if euid := c.geteuid(); euid != 0 {
		return fmt.Errorf("%w: running as uid %d", ErrRootRequired, euid)
	}

	// The baseline has to be captured while the host still has its
	// native route, before any rule is installed.
	baseline, err := c.detector.Snapshot(ctx, c.sampleSize)
	if err != nil {
		return fmt.Errorf("capturing baseline snapshot: %w", err)
	}
	c.logger.Info("baseline captured",
		"resolvers", len(baseline.Resolvers),
		"ipv4", baseline.V4.IP,
		"ipv6", baseline.V6.IP)

	if !c.backend.Available() {
		return fmt.Errorf("backend %s: %w", c.backend.Identifier(), firewall.ErrBackendNotAvailable)
	}

	c.transition(StatePreConnecting)
	if err := c.backend.PreConnect(c.exceptions); err != nil {
		return c.fail(fmt.Errorf("engaging kill switch: %w", err), false)
	}

	c.transition(StateAwaitingInterface)
	if err := c.supervisor.Start(); err != nil {
		return c.fail(fmt.Errorf("starting tunnel client: %w", err), false)
	}
	waitStart := time.Now()
	iface, err := c.supervisor.WaitForInterface(ctx)
	if err != nil {
		return c.fail(err, true)
	}
	metrics.Get().InterfaceWaitSecs.Observe(time.Since(waitStart).Seconds())

	c.transition(StatePostConnecting)
	if err := c.backend.PostConnect(iface); err != nil {
		return c.fail(fmt.Errorf("opening tunnel interface %s: %w", iface, err), true)
	}

	after, err := c.detector.Snapshot(ctx, c.sampleSize)
	if err != nil {
		return c.fail(fmt.Errorf("capturing post-connect snapshot: %w", err), true)
	}

	if result := leaks.Compare(baseline, after); result.Leaking() {
		c.transition(StateLeakDetected)
		if result.DNSLeak {
			metrics.Get().LeaksDetected.WithLabelValues("dns").Inc()
		}
		if result.IPLeak {
			metrics.Get().LeaksDetected.WithLabelValues("ip").Inc()
		}
		c.transition(StateDisconnecting)
		c.teardown(true)
		c.transition(StateDisconnected)
		metrics.Get().ConnectAttempts.WithLabelValues("leak").Inc()
		return fmt.Errorf("%w: dns=%v ip=%v", ErrLeakDetected, result.DNSLeak, result.IPLeak)
	}

	c.transition(StateConnected)
	metrics.Get().ConnectAttempts.WithLabelValues("connected").Inc()
	c.logger.Info("connected", "interface", iface)

	if c.monitor != nil {
		monCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go c.monitor.Run(monCtx)
	}

	<-ctx.Done()

	c.transition(StateDisconnecting)
	c.teardown(true)
	c.transition(StateDisconnected)
	return nil
}

// fail records the failure, runs the fail-safe teardown and passes the
// original error through.
func (c *Controller) fail(err error, killClient bool) error {
	c.transition(StateFailed)
	metrics.Get().ConnectAttempts.WithLabelValues("failed").Inc()
	c.logger.Error("connection attempt failed", "error", err)
	c.teardown(killClient)
	return err
}

// teardown restores the firewall and, when the client was started,
// terminates it. Both are best effort; neither error masks the reason
// the teardown ran.
func (c *Controller) teardown(killClient bool) {
	if err := c.backend.Disconnect(); err != nil {
		c.logger.Error("firewall teardown failed", "error", err)
	}
	if killClient {
		if err := c.supervisor.Terminate(); err != nil {
			c.logger.Error("terminating tunnel client failed", "error", err)
		}
	}
}
