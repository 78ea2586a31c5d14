// Package worker hosts virtual users behind the pool's RPC boundary.
// Each Worker owns a scenarioName -> vuID -> *vu.VirtualUser map and
// answers four procedures: setupWorker, iterations, scenariosState, and
// metrics.
package worker
