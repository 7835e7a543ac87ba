package firewall

import (
	"sync"

	"github.com/stretchr/testify/mock"
)

// MockExecutor is a testify mock implementation of Executor. It lives outside
// the test files so other packages can verify firewall interactions without
// touching the real host filter.
type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Execute(args []string) error {
	result := m.Called(args)
	return result.Error(0)
}

// RecordingExecutor captures every command it receives, in order. Optionally
// it fails a specific command so error paths can be exercised.
type RecordingExecutor struct {
	mu       sync.Mutex
	Commands [][]string

	// FailOn, when non-nil, is consulted for each command; returning a
	// non-nil error aborts that command.
	FailOn func(args []string) error
}

func (r *RecordingExecutor) Execute(args []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailOn != nil {
		if err := r.FailOn(args); err != nil {
			return err
		}
	}
	cp := make([]string, len(args))
	copy(cp, args)
	r.Commands = append(r.Commands, cp)
	return nil
}

// Reset clears the recorded commands.
func (r *RecordingExecutor) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Commands = nil
}
