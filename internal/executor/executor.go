package executor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/surgeload/surge/internal/vu"
)

// Caller is the narrow slice of pool.Pool an executor needs: issue a
// named RPC and get back its raw result or error. Executors depend on
// this interface rather than *pool.Pool directly so tests can supply a
// fake worker pool without spinning up real workers.
type Caller interface {
	Call(ctx context.Context, name string, args interface{}, timeout time.Duration) (json.RawMessage, error)
}

// Progress is the {percentage, extraInfos, aborted} triple spec.md §4.6
// asks every executor to report.
type Progress struct {
	Percentage float64
	ExtraInfo  string
	Aborted    bool
}

// Executor is the shared interface spec.md §4.6 describes: translate a
// scenario's options into concrete iterations RPCs, and report progress
// against a scenario's merged VU state.
type Executor interface {
	// Execute issues every iterations RPC this executor's scenario
	// requires and returns once they have all settled, even if one RPC
	// fails. A non-nil error means at least one RPC failed; the Runner
	// then marks the run failed.
	Execute(ctx context.Context) error

	// MaxVUs is the scenario's configured VU ceiling.
	MaxVUs() int

	// CurrentVUs is the number of VUs that have started work so far.
	CurrentVUs() int

	// Progress summarises state (the scenario's merged VU state, as
	// returned by the scenariosState RPC) into a percentage, optional
	// extra text, and whether the scenario aborted.
	Progress(state vu.ScenarioState) Progress
}

func clampPercentage(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
