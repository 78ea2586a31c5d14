package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Worker is anything the pool can dispatch a named call to and later
// terminate. internal/worker's rpc-backed implementation satisfies this;
// tests use in-memory fakes.
type Worker interface {
	ID() int
	Call(ctx context.Context, name string, args interface{}, timeout time.Duration) (json.RawMessage, error)
	Terminate()
}

// Factory creates the worker occupying slot id. It is called with the
// pool's bookkeeping lock released, so factories may block on real I/O.
type Factory func(id int) (Worker, error)

// Config configures a Pool. MinWorker workers are created eagerly as
// load demands; the pool never exceeds MaxWorker; no worker is handed
// more than MaxTasksPerWorker concurrent calls before new callers park.
type Config struct {
	MinWorker         int
	MaxWorker         int
	MaxTasksPerWorker int
	NewWorker         Factory
	// SetupTimeout bounds the synthetic setupWorker call issued right
	// after creation. Zero or negative means defaultSetupTimeout (5s).
	SetupTimeout time.Duration
	Log          *logrus.Entry
}

const defaultSetupTimeout = 5 * time.Second

type slot struct {
	worker  Worker
	running int
	ready   chan struct{}
	err     error
}

func (s *slot) isReady() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// broken reports whether construction of this slot has already finished
// and failed. Unlike isReady, a slot still under construction is not
// broken — it remains a valid load-balancing target, reserved task count
// and all, until its creation settles one way or the other.
func (s *slot) broken() bool {
	select {
	case <-s.ready:
		return s.err != nil
	default:
		return false
	}
}

type parked struct {
	grant chan grantResult
}

type grantResult struct {
	idx int
	err error
}

// Pool is the bounded worker pool described by the worker pool component:
// elastic between MinWorker and MaxWorker, load-balanced by running task
// count, with a FIFO park queue once every worker is saturated.
type Pool struct {
	cfg Config
	log *logrus.Entry

	mu         sync.Mutex
	slots      []*slot
	queue      []parked
	terminated bool
}

// New creates a Pool. No workers are started until the first Call.
func New(cfg Config) *Pool {
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Pool{cfg: cfg, log: cfg.Log}
}

// Call acquires a worker (creating one, reusing the least loaded, or
// parking the caller per the load-balancing algorithm), issues name(args)
// against it, and releases it back to the pool on settle.
func (p *Pool) Call(ctx context.Context, name string, args interface{}, timeout time.Duration) (json.RawMessage, error) {
	idx, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.release(idx)

	p.mu.Lock()
	s := p.slots[idx]
	p.mu.Unlock()

	select {
	case <-s.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, fmt.Errorf("pool: worker %d: %w", idx, s.err)
	}

	return s.worker.Call(ctx, name, args, timeout)
}

// acquire implements the remoteProcedureCall selection algorithm: prefer
// growing to MinWorker, then the least-loaded existing worker, then
// growing to MaxWorker, then parking on the FIFO queue.
func (p *Pool) acquire(ctx context.Context) (int, error) {
	p.mu.Lock()
	if p.terminated {
		p.mu.Unlock()
		return 0, &Terminated{}
	}

	if len(p.slots) < p.cfg.MinWorker {
		return p.createAndAcquire(ctx)
	}

	best, bestRunning, found := p.pickLeastLoadedLocked()
	if found && bestRunning < p.cfg.MaxTasksPerWorker {
		p.slots[best].running++
		p.mu.Unlock()
		return best, nil
	}

	if len(p.slots) < p.cfg.MaxWorker {
		return p.createAndAcquire(ctx)
	}

	return p.park(ctx)
}

// pickLeastLoadedLocked must be called with p.mu held. A slot still under
// construction is a valid pick — its task is reserved synchronously at
// creation, so it already carries the running count that picked it — but
// a slot whose construction has settled with an error never is.
func (p *Pool) pickLeastLoadedLocked() (idx int, running int, found bool) {
	for i, s := range p.slots {
		if s.broken() {
			continue
		}
		if !found || s.running < running {
			idx, running, found = i, s.running, true
		}
	}
	return idx, running, found
}

// createAndAcquire reserves a slot and its first task in the same locked
// section that appends it — matching the RPC's synchronous
// "increment runningTasks[pick] at pick" step — then releases the lock for
// the actual worker construction and synthetic setupWorker call before
// re-acquiring it to finish bookkeeping. A construction failure is pruned
// from workers[] when no other caller piggybacked a reservation on the
// still-constructing slot (its running count is still exactly the one it
// was created with) and it is still the last slot; otherwise it is left in
// place, permanently broken, so callers already waiting on this slot's idx
// never release(idx) past a truncated slice and later slots keep their
// indices.
func (p *Pool) createAndAcquire(ctx context.Context) (int, error) {
	s := &slot{ready: make(chan struct{}), running: 1}
	idx := len(p.slots)
	p.slots = append(p.slots, s)
	p.mu.Unlock()

	worker, err := p.cfg.NewWorker(idx)
	if err == nil {
		setupTimeout := p.cfg.SetupTimeout
		if setupTimeout <= 0 {
			setupTimeout = defaultSetupTimeout
		}
		_, err = worker.Call(ctx, "setupWorker", idx, setupTimeout)
	}

	p.mu.Lock()
	if err != nil {
		s.err = err
		if s.running <= 1 {
			p.pruneFailedLocked(idx)
		}
		close(s.ready)
		p.mu.Unlock()
		return 0, fmt.Errorf("pool: create worker %d: %w", idx, err)
	}

	s.worker = worker
	close(s.ready)
	p.mu.Unlock()
	return idx, nil
}

// pruneFailedLocked removes a failed slot if it is the last one, so a
// transient creation failure does not permanently shrink capacity below
// MaxWorker. Earlier slots are left untouched to keep indices stable.
func (p *Pool) pruneFailedLocked(idx int) {
	if idx == len(p.slots)-1 {
		p.slots = p.slots[:idx]
	}
}

func (p *Pool) park(ctx context.Context) (int, error) {
	pk := parked{grant: make(chan grantResult, 1)}
	p.queue = append(p.queue, pk)
	p.mu.Unlock()

	select {
	case g := <-pk.grant:
		return g.idx, g.err
	case <-ctx.Done():
		p.removeParked(pk)
		return 0, ctx.Err()
	}
}

func (p *Pool) removeParked(pk parked) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, q := range p.queue {
		if q.grant == pk.grant {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			return
		}
	}
}

// release decrements idx's running count, then, if a caller is parked,
// hands ownership of idx straight to the head of the queue instead of
// leaving the worker idle.
func (p *Pool) release(idx int) {
	p.mu.Lock()
	p.slots[idx].running--

	if len(p.queue) > 0 {
		head := p.queue[0]
		p.queue = p.queue[1:]
		p.slots[idx].running++
		p.mu.Unlock()
		head.grant <- grantResult{idx: idx}
		return
	}
	p.mu.Unlock()
}

// ForEachWorker issues name(args) against every currently ready worker
// concurrently and returns all settled outcomes in worker-index order.
func (p *Pool) ForEachWorker(ctx context.Context, name string, args interface{}, timeout time.Duration) []Outcome {
	p.mu.Lock()
	workers := make([]Worker, 0, len(p.slots))
	for _, s := range p.slots {
		if s.isReady() && s.worker != nil {
			workers = append(workers, s.worker)
		}
	}
	p.mu.Unlock()

	outcomes := make([]Outcome, len(workers))
	var wg sync.WaitGroup
	for i, w := range workers {
		wg.Add(1)
		go func(i int, w Worker) {
			defer wg.Done()
			result, err := w.Call(ctx, name, args, timeout)
			outcomes[i] = Outcome{WorkerID: w.ID(), Result: result, Err: err}
		}(i, w)
	}
	wg.Wait()
	return outcomes
}

// Outcome is one worker's settled result from ForEachWorker.
type Outcome struct {
	WorkerID int
	Result   json.RawMessage
	Err      error
}

// Terminate rejects every parked caller with "worker terminate" and
// terminates every constructed worker. It does not wait for in-flight
// calls to settle.
func (p *Pool) Terminate() {
	p.mu.Lock()
	if p.terminated {
		p.mu.Unlock()
		return
	}
	p.terminated = true
	queue := p.queue
	p.queue = nil
	slots := p.slots
	p.mu.Unlock()

	for _, q := range queue {
		q.grant <- grantResult{err: &Terminated{}}
	}
	for _, s := range slots {
		if s.isReady() && s.worker != nil {
			s.worker.Terminate()
		}
	}
}

// Size reports the current number of constructed (or constructing)
// workers. Exposed for tests and progress reporting.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}
