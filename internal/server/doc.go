// Package server hosts the Fiber HTTP service that sits in front of the cached
// application: it assigns request ids, recovers from handler panics, hands
// every non-diagnostics request to the proxy handler and leaves the `/-/`
// namespace to the diagnostics and control routes. It also owns the shared
// upstream http.Client and the hop-by-hop header rules used by every component
// that talks to the origin.
package server
