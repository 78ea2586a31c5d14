package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/surgeload/surge/internal/scenario"
	"github.com/surgeload/surge/internal/vu"
	"github.com/surgeload/surge/internal/worker"
)

// PerVUIterations implements spec.md §4.6.1: vus concurrent iterations
// RPCs, each running the scenario's full iteration count against its
// own vuId.
type PerVUIterations struct {
	caller       Caller
	moduleURL    string
	scenarioName string
	opts         scenario.ScenarioOptions
	rpcSlack     time.Duration

	currentVUs atomic.Int32
}

// NewPerVUIterations creates a per-vu-iterations executor for one
// scenario. rpcSlack pads the RPC timeout beyond maxDuration+gracefulStop
// so a well-behaved worker never times out before it can honor the
// graceful stop window.
func NewPerVUIterations(caller Caller, moduleURL, scenarioName string, opts scenario.ScenarioOptions, rpcSlack time.Duration) *PerVUIterations {
	return &PerVUIterations{
		caller:       caller,
		moduleURL:    moduleURL,
		scenarioName: scenarioName,
		opts:         opts,
		rpcSlack:     rpcSlack,
	}
}

func (e *PerVUIterations) MaxVUs() int     { return e.opts.VUs }
func (e *PerVUIterations) CurrentVUs() int { return int(e.currentVUs.Load()) }

// Execute issues one iterations RPC per VU, each requesting the
// scenario's full iteration count, and waits for all of them to settle.
func (e *PerVUIterations) Execute(ctx context.Context) error {
	timeout := rpcTimeout(time.Duration(e.opts.MaxDuration), time.Duration(e.opts.GracefulStopOrDefault()), e.rpcSlack)

	var wg sync.WaitGroup
	var failed atomic.Int32
	var firstErr error
	var mu sync.Mutex

	for vuID := 0; vuID < e.opts.VUs; vuID++ {
		wg.Add(1)
		go func(vuID int) {
			defer wg.Done()
			e.currentVUs.Add(1)

			args := worker.IterationsArgs{
				ModuleURL:          e.moduleURL,
				ScenarioName:       e.scenarioName,
				NbIter:             e.opts.Iterations,
				VuID:               vuID,
				MaxDurationMillis:  time.Duration(e.opts.MaxDuration).Milliseconds(),
				GracefulStopMillis: time.Duration(e.opts.GracefulStopOrDefault()).Milliseconds(),
			}
			if _, err := e.caller.Call(ctx, "iterations", args, timeout); err != nil {
				failed.Add(1)
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(vuID)
	}
	wg.Wait()

	if n := failed.Load(); n > 0 {
		return &RunError{Scenario: e.scenarioName, Failed: int(n), Total: e.opts.VUs, First: firstErr}
	}
	return nil
}

// Progress is totalIterationsDone / (vus * iterations) * 100, per
// spec.md §4.6.1.
func (e *PerVUIterations) Progress(state vu.ScenarioState) Progress {
	total := int64(e.opts.VUs) * int64(e.opts.Iterations)
	done := state.Success + state.Fail
	pct := 0.0
	if total > 0 {
		pct = float64(done) / float64(total) * 100
	}
	return Progress{Percentage: clampPercentage(pct), Aborted: state.Aborted}
}

// rpcTimeout sizes a call's timeout per SPEC_FULL.md's resolution of
// Open Question 1: never the limiting factor against maxDuration plus
// gracefulStop.
func rpcTimeout(maxDuration, gracefulStop, slack time.Duration) time.Duration {
	if maxDuration <= 0 {
		maxDuration = 24 * time.Hour
	}
	return maxDuration + gracefulStop + slack
}
