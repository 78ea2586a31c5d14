package runner

import "fmt"

// ThresholdFailure wraps a panic or error raised by a test module's
// threshold function. It marks the run failed but is never re-raised —
// the Runner still finishes printing the metrics table.
type ThresholdFailure struct {
	Reason string
}

func (e *ThresholdFailure) Error() string {
	return fmt.Sprintf("threshold failed: %s", e.Reason)
}

// RunFailure aggregates one or more scenario executors that rejected
// during Run. The run still proceeds to metrics collection and
// threshold evaluation best-effort, per spec.md §7's propagation
// policy for RpcTimeout/WorkerTerminated.
type RunFailure struct {
	Errors []error
}

func (e *RunFailure) Error() string {
	return fmt.Sprintf("runner: %d scenario(s) failed: %v", len(e.Errors), e.Errors[0])
}

func (e *RunFailure) Unwrap() []error { return e.Errors }
