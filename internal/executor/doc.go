// Package executor implements the three workload policies that turn a
// scenario's options into concrete iterations RPCs submitted to a
// worker pool: per-vu-iterations, shared-iterations, and constant-vus.
package executor
