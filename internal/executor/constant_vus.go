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

// ConstantVUs implements spec.md §4.6.3: vus concurrent iterations RPCs,
// each running until the VU's own deadline (the scenario's duration)
// fires, reporting progress by elapsed wall-clock time rather than
// completed work.
type ConstantVUs struct {
	caller       Caller
	moduleURL    string
	scenarioName string
	opts         scenario.ScenarioOptions
	rpcSlack     time.Duration

	currentVUs atomic.Int32

	mu        sync.Mutex
	startTime time.Time
}

// NewConstantVUs creates a constant-vus executor for one scenario.
func NewConstantVUs(caller Caller, moduleURL, scenarioName string, opts scenario.ScenarioOptions, rpcSlack time.Duration) *ConstantVUs {
	return &ConstantVUs{
		caller:       caller,
		moduleURL:    moduleURL,
		scenarioName: scenarioName,
		opts:         opts,
		rpcSlack:     rpcSlack,
	}
}

func (e *ConstantVUs) MaxVUs() int     { return e.opts.VUs }
func (e *ConstantVUs) CurrentVUs() int { return int(e.currentVUs.Load()) }

// Execute issues vus concurrent iterations RPCs, each with the infinite
// sentinel iteration count: the VU runtime's own deadline (duration)
// ends them, not a fixed count.
func (e *ConstantVUs) Execute(ctx context.Context) error {
	e.mu.Lock()
	e.startTime = time.Now()
	e.mu.Unlock()

	duration := time.Duration(e.opts.Duration)
	gracefulStop := time.Duration(e.opts.GracefulStopOrDefault())
	timeout := rpcTimeout(duration, gracefulStop, e.rpcSlack)

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
				NbIter:             worker.InfiniteIterations,
				VuID:               vuID,
				MaxDurationMillis:  duration.Milliseconds(),
				GracefulStopMillis: gracefulStop.Milliseconds(),
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

// Progress is time-based: (now - startTime) / duration * 100, clamped
// to 100 once the duration has elapsed, per spec.md §4.6.3.
func (e *ConstantVUs) Progress(state vu.ScenarioState) Progress {
	e.mu.Lock()
	start := e.startTime
	e.mu.Unlock()

	if start.IsZero() {
		return Progress{Aborted: state.Aborted}
	}

	elapsed := time.Since(start)
	pct := float64(elapsed) / float64(time.Duration(e.opts.Duration)) * 100
	return Progress{Percentage: clampPercentage(pct), Aborted: state.Aborted}
}
