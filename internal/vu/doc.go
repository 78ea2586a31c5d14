// Package vu implements the virtual-user runtime: one VU owns a private
// metrics registry, success/fail counters, an isolated HTTP client, and
// runs a module's iterations one at a time, honoring a per-batch
// deadline and graceful-stop window.
package vu
