// Package leaks discovers the DNS resolvers and public addresses a host is
// actually using, so the connection controller can compare the view from
// before and after a VPN session is established.
//
// Resolver discovery fans out over a bounded worker pool: every probe
// requests a uniquely labelled hostname so caches cannot answer, and the
// address that serves the request is the resolver in use. A sample is only
// trustworthy when every probe succeeded; any failure aborts the whole
// collection rather than returning partial data.
//
// Public address discovery is two sequential lookups against family-pinned
// endpoints, one per protocol family.
package leaks
