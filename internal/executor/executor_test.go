package executor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/surgeload/surge/internal/scenario"
	"github.com/surgeload/surge/internal/vu"
	"github.com/surgeload/surge/internal/worker"
)

// fakeCaller records every RPC it receives and resolves immediately
// (or with a configured error), without spinning up a real pool or
// worker.
type fakeCaller struct {
	mu    sync.Mutex
	calls []worker.IterationsArgs
	err   error
}

func (f *fakeCaller) Call(ctx context.Context, name string, args interface{}, timeout time.Duration) (json.RawMessage, error) {
	a := args.(worker.IterationsArgs)
	f.mu.Lock()
	f.calls = append(f.calls, a)
	f.mu.Unlock()
	return nil, f.err
}

func (f *fakeCaller) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestPerVUIterations_IssuesOneRPCPerVU(t *testing.T) {
	caller := &fakeCaller{}
	opts := scenario.ScenarioOptions{Executor: scenario.PerVUIterations, VUs: 4, Iterations: 10}
	e := NewPerVUIterations(caller, "mod.so", "default", opts, time.Second)

	if err := e.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if caller.count() != 4 {
		t.Fatalf("expected 4 RPCs, got %d", caller.count())
	}
	if e.CurrentVUs() != 4 {
		t.Fatalf("expected CurrentVUs=4, got %d", e.CurrentVUs())
	}

	seen := map[int]bool{}
	for _, c := range caller.calls {
		if c.NbIter != 10 {
			t.Fatalf("expected nbIter=10, got %d", c.NbIter)
		}
		seen[c.VuID] = true
	}
	if len(seen) != 4 {
		t.Fatalf("expected 4 distinct vuIds, got %d", len(seen))
	}
}

func TestPerVUIterations_Progress(t *testing.T) {
	opts := scenario.ScenarioOptions{Executor: scenario.PerVUIterations, VUs: 4, Iterations: 10}
	e := NewPerVUIterations(&fakeCaller{}, "mod.so", "default", opts, time.Second)

	p := e.Progress(vu.ScenarioState{Success: 20, Fail: 0})
	if p.Percentage != 50 {
		t.Fatalf("expected 50%%, got %v", p.Percentage)
	}

	p = e.Progress(vu.ScenarioState{Success: 40, Fail: 0})
	if p.Percentage != 100 {
		t.Fatalf("expected 100%%, got %v", p.Percentage)
	}
}

func TestPerVUIterations_RunErrorOnFailedRPC(t *testing.T) {
	caller := &fakeCaller{err: errors.New("boom")}
	opts := scenario.ScenarioOptions{Executor: scenario.PerVUIterations, VUs: 3, Iterations: 1}
	e := NewPerVUIterations(caller, "mod.so", "default", opts, time.Second)

	err := e.Execute(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	var runErr *RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("expected *RunError, got %T", err)
	}
	if runErr.Failed != 3 {
		t.Fatalf("expected 3 failures recorded, got %d", runErr.Failed)
	}
	// Every VU's RPC still settles even though all three fail.
	if caller.count() != 3 {
		t.Fatalf("expected all 3 RPCs issued, got %d", caller.count())
	}
}

func TestSharedIterations_ExactlyIterationsTotalRPCs(t *testing.T) {
	caller := &fakeCaller{}
	opts := scenario.ScenarioOptions{
		Executor:    scenario.SharedIterations,
		VUs:         16,
		Iterations:  10,
		MaxDuration: scenario.Duration(time.Minute),
	}
	e := NewSharedIterations(caller, "mod.so", "default", opts, time.Second)

	if err := e.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if caller.count() != 10 {
		t.Fatalf("expected exactly 10 iterations RPCs, got %d", caller.count())
	}
	for _, c := range caller.calls {
		if c.NbIter != 1 {
			t.Fatalf("expected nbIter=1 per call, got %d", c.NbIter)
		}
	}
	if e.CurrentVUs() > 10 {
		t.Fatalf("expected at most 10 distinct reserving VUs, got %d", e.CurrentVUs())
	}
}

func TestSharedIterations_Progress(t *testing.T) {
	opts := scenario.ScenarioOptions{Executor: scenario.SharedIterations, VUs: 2, Iterations: 10, MaxDuration: scenario.Duration(time.Minute)}
	e := NewSharedIterations(&fakeCaller{}, "mod.so", "default", opts, time.Second)

	p := e.Progress(vu.ScenarioState{Success: 5, Fail: 0})
	if p.Percentage != 50 {
		t.Fatalf("expected 50%%, got %v", p.Percentage)
	}
}

func TestSharedIterations_StopsReservingPastDeadline(t *testing.T) {
	caller := &fakeCaller{}
	opts := scenario.ScenarioOptions{
		Executor:    scenario.SharedIterations,
		VUs:         4,
		Iterations:  1000000,
		MaxDuration: scenario.Duration(0), // already elapsed: abortAt == now
	}
	e := NewSharedIterations(caller, "mod.so", "default", opts, time.Second)

	done := make(chan struct{})
	go func() {
		e.Execute(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Execute did not return promptly once the deadline had already elapsed")
	}
}

func TestConstantVUs_IssuesInfiniteSentinel(t *testing.T) {
	caller := &fakeCaller{}
	opts := scenario.ScenarioOptions{Executor: scenario.ConstantVUs, VUs: 2, Duration: scenario.Duration(0)}
	e := NewConstantVUs(caller, "mod.so", "default", opts, time.Second)

	if err := e.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if caller.count() != 2 {
		t.Fatalf("expected 2 RPCs, got %d", caller.count())
	}
	for _, c := range caller.calls {
		if c.NbIter != worker.InfiniteIterations {
			t.Fatalf("expected infinite sentinel, got %d", c.NbIter)
		}
	}
}

func TestConstantVUs_ProgressIsTimeBased(t *testing.T) {
	opts := scenario.ScenarioOptions{Executor: scenario.ConstantVUs, VUs: 1, Duration: scenario.Duration(100 * time.Millisecond)}
	e := NewConstantVUs(&fakeCaller{}, "mod.so", "default", opts, time.Second)

	if p := e.Progress(vu.ScenarioState{}); p.Percentage != 0 {
		t.Fatalf("expected 0%% before Execute starts the clock, got %v", p.Percentage)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.Execute(context.Background())
	}()
	time.Sleep(150 * time.Millisecond)
	wg.Wait()

	p := e.Progress(vu.ScenarioState{})
	if p.Percentage != 100 {
		t.Fatalf("expected progress clamped to 100%% after duration elapses, got %v", p.Percentage)
	}
}

func TestNew_UnknownExecutorKind(t *testing.T) {
	_, err := New(&fakeCaller{}, "mod.so", "default", scenario.ScenarioOptions{Executor: "bogus", VUs: 1}, time.Second)
	if err == nil {
		t.Fatal("expected error for unknown executor kind")
	}
}

func TestNew_DispatchesToEachKind(t *testing.T) {
	cases := []scenario.ScenarioOptions{
		{Executor: scenario.PerVUIterations, VUs: 1, Iterations: 1},
		{Executor: scenario.SharedIterations, VUs: 1, Iterations: 1, MaxDuration: scenario.Duration(time.Second)},
		{Executor: scenario.ConstantVUs, VUs: 1, Duration: scenario.Duration(time.Millisecond)},
	}
	for _, opts := range cases {
		e, err := New(&fakeCaller{}, "mod.so", "default", opts, time.Second)
		if err != nil {
			t.Fatalf("New(%s): %v", opts.Executor, err)
		}
		if e.MaxVUs() != 1 {
			t.Fatalf("MaxVUs mismatch for %s", opts.Executor)
		}
	}
}

func TestPerVUIterations_NoDoubleCountOnConcurrentVUs(t *testing.T) {
	caller := &fakeCaller{}
	opts := scenario.ScenarioOptions{Executor: scenario.PerVUIterations, VUs: 50, Iterations: 1}
	e := NewPerVUIterations(caller, "mod.so", "default", opts, time.Second)
	if err := e.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var vuIDs atomic.Int64
	seen := map[int]bool{}
	caller.mu.Lock()
	for _, c := range caller.calls {
		if !seen[c.VuID] {
			seen[c.VuID] = true
			vuIDs.Add(1)
		}
	}
	caller.mu.Unlock()
	if vuIDs.Load() != 50 {
		t.Fatalf("expected 50 distinct vuIds, got %d", vuIDs.Load())
	}
}
