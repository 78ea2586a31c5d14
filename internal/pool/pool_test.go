package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeWorker is an in-memory Worker whose Call blocks until release is
// closed, letting tests hold a call "in flight" to exercise load
// balancing deterministically.
type fakeWorker struct {
	id          int
	setupCalls  []interface{}
	mu          sync.Mutex
	terminated  bool
	calls       int32
	block       chan struct{}
	unblockOnce sync.Once
}

func newFakeWorker(id int) *fakeWorker {
	return &fakeWorker{id: id, block: make(chan struct{})}
}

func (w *fakeWorker) ID() int { return w.id }

func (w *fakeWorker) Call(ctx context.Context, name string, args interface{}, timeout time.Duration) (json.RawMessage, error) {
	atomic.AddInt32(&w.calls, 1)
	if name == "setupWorker" {
		w.mu.Lock()
		w.setupCalls = append(w.setupCalls, args)
		w.mu.Unlock()
		return nil, nil
	}
	select {
	case <-w.block:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return json.RawMessage(`"ok"`), nil
}

func (w *fakeWorker) release() {
	w.unblockOnce.Do(func() { close(w.block) })
}

func (w *fakeWorker) Terminate() {
	w.mu.Lock()
	w.terminated = true
	w.mu.Unlock()
}

func newTrackingFactory(t *testing.T) (Factory, func() []*fakeWorker) {
	var mu sync.Mutex
	var created []*fakeWorker
	factory := func(id int) (Worker, error) {
		w := newFakeWorker(id)
		mu.Lock()
		created = append(created, w)
		mu.Unlock()
		return w, nil
	}
	return factory, func() []*fakeWorker {
		mu.Lock()
		defer mu.Unlock()
		out := make([]*fakeWorker, len(created))
		copy(out, created)
		return out
	}
}

// TestPoolBalancesAcrossFourWorkers is the literal property-7 scenario:
// minWorker=2, maxWorker=4, maxTasksPerWorker=2; 8 concurrent long-running
// calls settle onto exactly 4 workers at [2,2,2,2]; a 9th call parks.
func TestPoolBalancesAcrossFourWorkers(t *testing.T) {
	factory, created := newTrackingFactory(t)
	p := New(Config{
		MinWorker:         2,
		MaxWorker:         4,
		MaxTasksPerWorker: 2,
		NewWorker:         factory,
	})

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Call(context.Background(), "work", nil, time.Second)
			results <- err
		}()
	}

	// Give the pool time to settle all 8 calls onto workers.
	deadline := time.After(2 * time.Second)
	for {
		if p.Size() == 4 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("pool did not grow to 4 workers, size=%d", p.Size())
		case <-time.After(10 * time.Millisecond):
		}
	}

	// A 9th call must park: it should not complete until a worker frees up.
	ninthDone := make(chan struct{})
	go func() {
		_, _ = p.Call(context.Background(), "work", nil, time.Second)
		close(ninthDone)
	}()

	select {
	case <-ninthDone:
		t.Fatal("9th call completed without any worker freeing up")
	case <-time.After(100 * time.Millisecond):
	}

	workers := created()
	if len(workers) != 4 {
		t.Fatalf("created %d workers, want 4", len(workers))
	}
	for _, w := range workers {
		if got := atomic.LoadInt32(&w.calls); got != 3 { // 1 setupWorker + 2 work calls
			t.Fatalf("worker %d got %d calls, want 3 (1 setup + 2 work)", w.id, got)
		}
	}

	// Free one worker; its two original calls and the 9th call (handed
	// that worker on release) should all complete, still bounded to 4
	// workers.
	workers[0].release()

	select {
	case <-ninthDone:
	case <-time.After(time.Second):
		t.Fatal("9th call never completed after a worker freed up")
	}

	for _, w := range workers {
		w.release()
	}
	wg.Wait()

	if p.Size() != 4 {
		t.Fatalf("pool grew beyond maxWorker: size=%d", p.Size())
	}
}

// TestSetupWorkerCalledInCreationOrder is property 8: setupWorker(id) is
// invoked with distinct, creation-ordered ids starting at 0.
func TestSetupWorkerCalledInCreationOrder(t *testing.T) {
	factory, created := newTrackingFactory(t)
	// The fake blocks every non-setup call until released; release each
	// worker as it is created so the sequential calls below can return.
	releasing := func(id int) (Worker, error) {
		w, err := factory(id)
		if err == nil {
			w.(*fakeWorker).release()
		}
		return w, err
	}
	p := New(Config{
		MinWorker:         3,
		MaxWorker:         3,
		MaxTasksPerWorker: 100,
		NewWorker:         releasing,
	})

	for i := 0; i < 3; i++ {
		w, err := p.Call(context.Background(), "work", nil, time.Second)
		if err != nil {
			t.Fatalf("Call() error = %v", err)
		}
		_ = w
	}

	workers := created()
	if len(workers) != 3 {
		t.Fatalf("created %d workers, want 3", len(workers))
	}
	for i, w := range workers {
		if w.id != i {
			t.Fatalf("worker %d has id %d", i, w.id)
		}
		if len(w.setupCalls) != 1 {
			t.Fatalf("worker %d got %d setupWorker calls, want 1", i, len(w.setupCalls))
		}
		var gotID float64
		if n, ok := w.setupCalls[0].(int); ok {
			gotID = float64(n)
		} else {
			t.Fatalf("worker %d setupWorker arg = %v (%T)", i, w.setupCalls[0], w.setupCalls[0])
		}
		if int(gotID) != i {
			t.Fatalf("worker %d setupWorker called with id %v, want %d", i, gotID, i)
		}
	}

	for _, w := range workers {
		w.release()
	}
}

func TestForEachWorkerHitsEveryReadyWorker(t *testing.T) {
	factory, created := newTrackingFactory(t)
	p := New(Config{
		MinWorker:         3,
		MaxWorker:         3,
		MaxTasksPerWorker: 1,
		NewWorker:         factory,
	})

	workDone := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, _ = p.Call(context.Background(), "work", nil, time.Second)
			workDone <- struct{}{}
		}()
	}
	for len(created()) < 3 {
		time.Sleep(5 * time.Millisecond)
	}

	// The fake blocks "ping" like any other non-setup call, so release the
	// workers first; once the three work calls have returned, every worker
	// has finished setup and is ready.
	for _, w := range created() {
		w.release()
	}
	for i := 0; i < 3; i++ {
		<-workDone
	}

	outcomes := p.ForEachWorker(context.Background(), "ping", nil, time.Second)
	if len(outcomes) != 3 {
		t.Fatalf("ForEachWorker returned %d outcomes, want 3", len(outcomes))
	}
}

func TestTerminateRejectsParkedCallers(t *testing.T) {
	factory, created := newTrackingFactory(t)
	p := New(Config{
		MinWorker:         1,
		MaxWorker:         1,
		MaxTasksPerWorker: 1,
		NewWorker:         factory,
	})

	holderDone := make(chan error, 1)
	go func() {
		_, err := p.Call(context.Background(), "work", nil, time.Second)
		holderDone <- err
	}()
	for p.Size() < 1 {
		time.Sleep(5 * time.Millisecond)
	}

	parkedErr := make(chan error, 1)
	go func() {
		_, err := p.Call(context.Background(), "work", nil, time.Second)
		parkedErr <- err
	}()
	time.Sleep(20 * time.Millisecond) // let it park

	p.Terminate()

	select {
	case err := <-parkedErr:
		if err == nil || err.Error() != "worker terminate" {
			t.Fatalf("parked call error = %v, want worker terminate", err)
		}
	case <-time.After(time.Second):
		t.Fatal("parked call never rejected by Terminate")
	}

	for _, w := range created() {
		w.release()
	}
	<-holderDone
}

func TestCreationFailureDoesNotLeavePartialSlot(t *testing.T) {
	var calls int32
	var created []*fakeWorker
	var mu sync.Mutex
	factory := func(id int) (Worker, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, fmt.Errorf("boom")
		}
		w := newFakeWorker(id)
		mu.Lock()
		created = append(created, w)
		mu.Unlock()
		return w, nil
	}
	p := New(Config{MinWorker: 1, MaxWorker: 1, MaxTasksPerWorker: 1, NewWorker: factory})

	if _, err := p.Call(context.Background(), "work", nil, time.Second); err == nil {
		t.Fatal("expected first creation to fail")
	}
	if p.Size() != 0 {
		t.Fatalf("failed creation left a partial slot, size=%d", p.Size())
	}

	done := make(chan error, 1)
	go func() {
		_, err := p.Call(context.Background(), "work", nil, time.Second)
		done <- err
	}()

	for {
		mu.Lock()
		n := len(created)
		mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	created[0].release()

	if err := <-done; err != nil {
		t.Fatalf("second Call() error = %v", err)
	}
}
