// Package firewall drives the host packet filter through ordered, reversible
// rule programs. It is the kill-switch half of Linkage: before the VPN client
// is started the default policy is flipped to deny with explicit exceptions,
// once the tunnel interface exists it is allowed, and on disconnect the
// filter is restored to default-accept.
//
// # Architecture
//
//	Exception list → Backend rule program → Executor → iptables/ip6tables
//
// # Key Types
//
//   - [Executor]: one invocation of a filter-management binary
//   - [Backend]: the pre-connect / post-connect / disconnect rule programs
//   - [IptablesBackend]: the iptables implementation, one executor per
//     address family
//   - [Registry]: explicit backend registry constructed at startup
//
// # Ordering
//
// PreConnect installs default-deny strictly before any allow rule. Reversing
// that order opens a window where untracked traffic is implicitly permitted,
// so the command sequence is fixed and callers must not reorder it. All
// backend mutations must come from a single caller; the package does no
// internal locking.
//
// Disconnect is the fail-safe teardown: it is idempotent, tolerates a
// partially applied pre-connect program, and never leaves the host in
// default-deny.
package firewall
