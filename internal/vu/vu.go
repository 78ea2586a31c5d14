package vu

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/surgeload/surge/internal/metrics"
	"github.com/surgeload/surge/internal/script"
)

// ScenarioState is the {success, fail, aborted} snapshot a worker
// reports back through the scenariosState RPC.
type ScenarioState struct {
	Success int64 `json:"success"`
	Fail    int64 `json:"fail"`
	Aborted bool  `json:"aborted"`
}

// Merge folds another VU's state into s, for combining every VU of a
// scenario hosted by one worker.
func (s ScenarioState) Merge(o ScenarioState) ScenarioState {
	return ScenarioState{
		Success: s.Success + o.Success,
		Fail:    s.Fail + o.Fail,
		Aborted: s.Aborted || o.Aborted,
	}
}

// VirtualUser is one independent logical client: its own metrics
// registry, its own isolated HTTP client (cookie jar included), its own
// success/fail/aborted bookkeeping. A VirtualUser is not safe for
// concurrent DoIterations calls. The worker hosting it does not serialise
// them; the executors issue at most one iterations call at a time per
// (scenario, vuId) pair.
type VirtualUser struct {
	id  int
	log *logrus.Entry

	registry   *metrics.Registry
	fetchTrend *metrics.TrendHandle
	iterTrend  *metrics.TrendHandle

	success atomic.Int64
	fail    atomic.Int64
	aborted atomic.Bool

	client *http.Client

	mu       sync.Mutex
	abortCtx context.Context
}

// New creates a VirtualUser with its own registry, cookie jar, and
// instrumented HTTP client.
func New(id int, log *logrus.Entry) *VirtualUser {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	registry := metrics.NewRegistry()

	jar, _ := cookiejar.New(nil)

	vu := &VirtualUser{
		id:         id,
		log:        log.WithField("vu", id),
		registry:   registry,
		fetchTrend: registry.Trend("fetch"),
		iterTrend:  registry.Trend("iterations"),
		abortCtx:   context.Background(),
	}

	vu.client = &http.Client{
		Jar: jar,
		Transport: &instrumentedTransport{
			inner:   http.DefaultTransport,
			fetch:   vu.fetchTrend,
			abortFn: vu.currentAbortCtx,
		},
	}

	return vu
}

// ID returns the VU's numeric identity.
func (vu *VirtualUser) ID() int { return vu.id }

func (vu *VirtualUser) currentAbortCtx() context.Context {
	vu.mu.Lock()
	defer vu.mu.Unlock()
	return vu.abortCtx
}

func (vu *VirtualUser) setAbortCtx(ctx context.Context) {
	vu.mu.Lock()
	vu.abortCtx = ctx
	vu.mu.Unlock()
}

// DoIterations runs iterations 0..n-1 of module against vuId==vu.ID(),
// implementing the deadline and graceful-stop semantics: once
// maxDuration elapses, the in-flight iteration gets up to gracefulStop
// additional wall-clock time to settle before being forced to "fail"
// and the VU marked aborted. maxDuration <= 0 means no deadline. The
// VU's success/fail counters and registry accumulate across repeated
// calls (a worker may call this once per reserved iteration for
// shared-iterations scenarios).
func (vu *VirtualUser) DoIterations(ctx context.Context, module script.Module, n int, maxDuration, gracefulStop time.Duration) {
	var abortCtx context.Context
	var cancel context.CancelFunc
	if maxDuration > 0 {
		abortCtx, cancel = context.WithDeadline(ctx, time.Now().Add(maxDuration))
	} else {
		abortCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	vu.setAbortCtx(abortCtx)
	defer vu.setAbortCtx(context.Background())

iterLoop:
	for i := 0; i < n; i++ {
		if abortCtx.Err() != nil {
			vu.aborted.Store(true)
			break iterLoop
		}

		iteration := i
		t0 := time.Now()
		iterCtx := withClient(abortCtx, vu.client)

		done := make(chan error, 1)
		go func() { done <- vu.safeRun(iterCtx, module, iteration) }()

		select {
		case err := <-done:
			vu.record(time.Since(t0), err)
			continue iterLoop
		case <-abortCtx.Done():
		}

		// The deadline fired while this iteration was in flight: give it
		// gracefulStop more wall-clock time before forcing a failure.
		// Either way the batch ends here — remaining iterations are
		// skipped, so the VU is marked aborted regardless of whether
		// this iteration itself settled in time.
		select {
		case err := <-done:
			vu.record(time.Since(t0), err)
		case <-time.After(gracefulStop):
			vu.record(time.Since(t0), fmt.Errorf("vu %d: iteration %d exceeded graceful stop", vu.id, iteration))
		}
		vu.aborted.Store(true)
		break iterLoop
	}
}

// safeRun invokes the module, converting a panic into an error so a
// user bug never takes down the worker hosting this VU.
func (vu *VirtualUser) safeRun(ctx context.Context, module script.Module, iteration int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("vu %d: iteration %d panicked: %v", vu.id, iteration, r)
		}
	}()
	return module.RunIteration(ctx, vu.id, iteration)
}

func (vu *VirtualUser) record(elapsed time.Duration, err error) {
	ms := float64(elapsed) / float64(time.Millisecond)
	if err != nil {
		vu.iterTrend.Add(ms, "fail")
		vu.fail.Add(1)
		vu.log.WithError(err).Error("iteration failed")
		return
	}
	vu.iterTrend.Add(ms, "success")
	vu.success.Add(1)
}

// ScenarioState returns a snapshot of {success, fail, aborted}.
func (vu *VirtualUser) ScenarioState() ScenarioState {
	return ScenarioState{
		Success: vu.success.Load(),
		Fail:    vu.fail.Load(),
		Aborted: vu.aborted.Load(),
	}
}

// Metrics returns a snapshot of this VU's private registry.
func (vu *VirtualUser) Metrics() metrics.RegistryObj {
	return vu.registry.Snapshot()
}
