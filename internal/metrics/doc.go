// Package metrics implements the tagged trend/counter registry used by
// every VU to record observations, and the pure merge and report
// algorithms used to aggregate them across workers.
package metrics
