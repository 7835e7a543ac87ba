package firewall

// Backend is the abstract contract for a host packet-filter implementation.
// The three lifecycle operations are ordered rule programs; only the
// connection lifecycle controller may invoke them, one attempt at a time.
type Backend interface {
	// Identifier returns a stable tag, unique among registered backends.
	Identifier() string

	// Available reports whether the backend's OS assumptions hold and its
	// tooling is resolvable on this host.
	Available() bool

	// PreConnect installs the kill switch: default-deny on all chains plus
	// allow rules for the given exceptions. Default-deny is installed
	// strictly before any allow rule. On failure the remaining commands are
	// skipped and the caller is expected to invoke Disconnect.
	PreConnect(exceptions []Exception) error

	// PostConnect allows all outbound traffic on the newly assigned tunnel
	// interface. Must only be called once the interface name is known.
	PostConnect(ifaceName string) error

	// Disconnect restores default-accept and removes every rule and chain
	// this backend created. It is idempotent and safe to call after a
	// partially applied PreConnect.
	Disconnect() error
}
