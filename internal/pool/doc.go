// Package pool multiplexes calls onto a bounded, elastic set of workers.
//
// A worker is anything that can accept a named RPC and eventually settle
// it; the pool itself never talks the wire protocol, it only tracks
// which worker is least loaded and hands work to it. Bookkeeping
// (workers/runningTasks/queue) is protected by a single mutex, matching
// a threaded reading of the cooperative-supervisor model: callers never
// observe partial state, but RPC I/O itself happens outside the lock so
// one slow call cannot stall selection for everyone else.
package pool
