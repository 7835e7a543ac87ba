// Package vpn supervises the tunneling client subprocess. It starts the
// client with a config file, watches its stdout for the line announcing
// the tunnel interface and terminates it gracefully on disconnect.
package vpn

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bitjerkers/linkage/internal/logging"
)

// ErrInterfaceParse is returned when the client exits, goes silent or
// times out before announcing its tunnel interface.
var ErrInterfaceParse = errors.New("tunnel interface was never reported by the client")

// ErrNotStarted is returned by methods that need a running subprocess.
var ErrNotStarted = errors.New("client process not started")

// ifaceUpPattern matches the OpenVPN log line emitted when the tun
// device comes up.
var ifaceUpPattern = regexp.MustCompile(`net_iface_up: set (tun[0-9]+) up`)

// ParseInterfaceLine extracts the tunnel interface name from one client
// output line, returning "" when the line is not the announcement.
func ParseInterfaceLine(line string) string {
	m := ifaceUpPattern.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	return m[1]
}

// DefaultInterfaceTimeout bounds how long WaitForInterface blocks when
// the caller's context has no earlier deadline.
const DefaultInterfaceTimeout = 30 * time.Second

// Supervisor runs one tunneling client process.
type Supervisor struct {
	binary     string
	configPath string
	timeout    time.Duration
	logger     *logging.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	ifaceCh chan string
	eof     chan struct{}
	reaped  chan struct{}
	reapErr error
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithInterfaceTimeout overrides the default interface wait deadline.
func WithInterfaceTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger for client output and lifecycle events.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Supervisor) { s.logger = logger }
}

// NewSupervisor prepares a supervisor for one client invocation. The
// config file path is passed to the client as its sole argument.
func NewSupervisor(binary, configPath string, opts ...Option) *Supervisor {
	s := &Supervisor{
		binary:     binary,
		configPath: configPath,
		timeout:    DefaultInterfaceTimeout,
		logger:     logging.Default().WithComponent("vpn"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the client with stdout piped. An internal goroutine
// reaps the process as soon as it exits, whether or not Terminate is
// ever called.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil {
		return fmt.Errorf("client %s already started", s.binary)
	}

	cmd := exec.Command(s.binary, s.configPath)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("piping client stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", s.binary, err)
	}
	s.logger.Info("client started", "binary", s.binary, "pid", cmd.Process.Pid)

	ifaceCh := make(chan string, 1)
	eof := make(chan struct{})
	go func() {
		defer close(eof)
		defer stdout.Close()
		scanner := bufio.NewScanner(stdout)
		announced := false
		for scanner.Scan() {
			line := scanner.Text()
			s.logger.Debug("client output", "line", line)
			if !announced {
				if iface := ParseInterfaceLine(line); iface != "" {
					announced = true
					ifaceCh <- iface
				}
			}
		}
	}()

	// Reaping is independent of the stdout pipe: a descendant that
	// inherited the pipe must not delay the reap, and the pipe staying
	// open must not leave a zombie behind. os.Process.Wait leaves the
	// pipe alone, so the scanner still drains everything the client
	// wrote before exiting.
	reaped := make(chan struct{})
	go func() {
		defer close(reaped)
		state, err := cmd.Process.Wait()
		if err != nil {
			s.mu.Lock()
			s.reapErr = err
			s.mu.Unlock()
			return
		}
		s.logger.Info("client exited", "status", state.ExitCode())
	}()

	s.cmd = cmd
	s.ifaceCh = ifaceCh
	s.eof = eof
	s.reaped = reaped
	return nil
}

// Pid returns the client process id, or 0 before Start.
func (s *Supervisor) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// WaitForInterface blocks until the client announces its tunnel
// interface and returns its name. It gives up with ErrInterfaceParse
// when the deadline passes or the client's output ends without the
// announcement.
func (s *Supervisor) WaitForInterface(ctx context.Context) (string, error) {
	s.mu.Lock()
	ifaceCh, eof := s.ifaceCh, s.eof
	s.mu.Unlock()
	if ifaceCh == nil {
		return "", ErrNotStarted
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	select {
	case iface := <-ifaceCh:
		s.logger.Info("tunnel interface up", "interface", iface)
		return iface, nil
	case <-eof:
		// The announcement may have raced with the client exiting.
		select {
		case iface := <-ifaceCh:
			s.logger.Info("tunnel interface up", "interface", iface)
			return iface, nil
		default:
		}
		return "", fmt.Errorf("%w: client output ended", ErrInterfaceParse)
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrInterfaceParse, ctx.Err())
	}
}

// Terminate sends SIGTERM to the client and waits for the reap. It is
// idempotent: repeated calls and calls after the process exited on its
// own return the stored reap result. A non-zero exit caused by the
// signal is not treated as an error.
func (s *Supervisor) Terminate() error {
	s.mu.Lock()
	cmd, reaped := s.cmd, s.reaped
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return ErrNotStarted
	}

	select {
	case <-reaped:
		// Already exited; the pid may have been reused, do not signal.
	default:
		if err := unix.Kill(cmd.Process.Pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
			return fmt.Errorf("signaling client: %w", err)
		}
	}

	<-reaped
	s.mu.Lock()
	err := s.reapErr
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("reaping client: %w", err)
	}
	return nil
}
