package firewall

import (
	"fmt"

	"github.com/bitjerkers/linkage/internal/logging"
)

// Registry holds the firewall backends known to the application. It is
// constructed once at startup and handed to the controller explicitly; there
// is no package-level backend state.
type Registry struct {
	backends []Backend
	byID     map[string]Backend
}

// NewRegistry builds a registry from the given backends. Identifiers must be
// unique.
func NewRegistry(backends ...Backend) (*Registry, error) {
	r := &Registry{
		byID: make(map[string]Backend, len(backends)),
	}
	for _, b := range backends {
		id := b.Identifier()
		if _, dup := r.byID[id]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateIdentifier, id)
		}
		r.byID[id] = b
		r.backends = append(r.backends, b)
	}
	return r, nil
}

// DefaultRegistry returns the registry of built-in backends. Currently this
// is iptables only.
func DefaultRegistry(logger *logging.Logger) *Registry {
	r, err := NewRegistry(NewIptablesBackend(logger))
	if err != nil {
		// Built-in identifiers are unique by construction.
		panic(err)
	}
	return r
}

// Get returns the backend with the given identifier.
func (r *Registry) Get(id string) (Backend, bool) {
	b, ok := r.byID[id]
	return b, ok
}

// All returns the registered backends in registration order.
func (r *Registry) All() []Backend {
	out := make([]Backend, len(r.backends))
	copy(out, r.backends)
	return out
}

// FirstAvailable returns the first backend whose host assumptions hold, or
// ErrBackendNotAvailable if none do.
func (r *Registry) FirstAvailable() (Backend, error) {
	for _, b := range r.backends {
		if b.Available() {
			return b, nil
		}
	}
	return nil, ErrBackendNotAvailable
}
