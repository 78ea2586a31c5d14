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

// SharedIterations implements spec.md §4.6.2: a single logical counter
// bounded by the scenario's iteration total, drained by up to vus
// parallel workers racing to reserve one iteration at a time.
type SharedIterations struct {
	caller       Caller
	moduleURL    string
	scenarioName string
	opts         scenario.ScenarioOptions
	rpcSlack     time.Duration

	done       atomic.Int64
	currentVUs atomic.Int32
}

// NewSharedIterations creates a shared-iterations executor for one
// scenario.
func NewSharedIterations(caller Caller, moduleURL, scenarioName string, opts scenario.ScenarioOptions, rpcSlack time.Duration) *SharedIterations {
	return &SharedIterations{
		caller:       caller,
		moduleURL:    moduleURL,
		scenarioName: scenarioName,
		opts:         opts,
		rpcSlack:     rpcSlack,
	}
}

func (e *SharedIterations) MaxVUs() int     { return e.opts.VUs }
func (e *SharedIterations) CurrentVUs() int { return int(e.currentVUs.Load()) }

// Execute runs up to vus parallel reservation loops, each claiming one
// iteration at a time from the shared counter until it is exhausted or
// the scenario's abort timestamp (scenarioStart + maxDuration) passes.
func (e *SharedIterations) Execute(ctx context.Context) error {
	abortAt := time.Now().Add(time.Duration(e.opts.MaxDuration))
	gracefulStop := time.Duration(e.opts.GracefulStopOrDefault())

	var wg sync.WaitGroup
	var failed atomic.Int32
	var issued atomic.Int32
	var firstErr error
	var mu sync.Mutex

	for workerVU := 0; workerVU < e.opts.VUs; workerVU++ {
		wg.Add(1)
		go func(workerVU int) {
			defer wg.Done()
			e.runWorker(ctx, workerVU, abortAt, gracefulStop, &issued, &failed, &firstErr, &mu)
		}(workerVU)
	}
	wg.Wait()

	if n := failed.Load(); n > 0 {
		return &RunError{Scenario: e.scenarioName, Failed: int(n), Total: int(issued.Load()), First: firstErr}
	}
	return nil
}

func (e *SharedIterations) runWorker(ctx context.Context, workerVU int, abortAt time.Time, gracefulStop time.Duration, issued, failed *atomic.Int32, firstErr *error, mu *sync.Mutex) {
	reservedAny := false
	for {
		// Reserve one iteration before issuing any work, so the total
		// issued across all workers never exceeds Iterations even with
		// concurrent reservers.
		reserved := e.done.Add(1)
		if reserved > int64(e.opts.Iterations) {
			return
		}

		if !reservedAny {
			reservedAny = true
			e.currentVUs.Add(1)
		}

		remaining := time.Until(abortAt)
		if remaining <= 0 {
			return
		}

		timeout := rpcTimeout(remaining, gracefulStop, e.rpcSlack)
		args := worker.IterationsArgs{
			ModuleURL:          e.moduleURL,
			ScenarioName:       e.scenarioName,
			NbIter:             1,
			VuID:               workerVU,
			MaxDurationMillis:  remaining.Milliseconds(),
			GracefulStopMillis: gracefulStop.Milliseconds(),
		}

		issued.Add(1)
		if _, err := e.caller.Call(ctx, "iterations", args, timeout); err != nil {
			failed.Add(1)
			mu.Lock()
			if *firstErr == nil {
				*firstErr = err
			}
			mu.Unlock()
		}
	}
}

// Progress is state.iterations.(success+fail) / iterations * 100, per
// spec.md §4.6.2.
func (e *SharedIterations) Progress(state vu.ScenarioState) Progress {
	done := state.Success + state.Fail
	pct := 0.0
	if e.opts.Iterations > 0 {
		pct = float64(done) / float64(e.opts.Iterations) * 100
	}
	return Progress{Percentage: clampPercentage(pct), Aborted: state.Aborted}
}
