package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/surgeload/surge/internal/metrics"
	"github.com/surgeload/surge/internal/pool"
	"github.com/surgeload/surge/internal/rpc"
	"github.com/surgeload/surge/internal/script"
	"github.com/surgeload/surge/internal/vu"
)

// InfiniteIterations is the sentinel nbIter value constant-vus issues:
// the VU runs until its deadline fires rather than until a fixed
// iteration count is reached.
const InfiniteIterations = math.MaxInt32

// IterationsArgs is the iterations RPC's argument shape.
type IterationsArgs struct {
	ModuleURL          string `json:"moduleURL"`
	ScenarioName       string `json:"scenarioName"`
	NbIter             int    `json:"nbIter"`
	VuID               int    `json:"vuId"`
	MaxDurationMillis  int64  `json:"maxDurationMillis"`
	GracefulStopMillis int64  `json:"gracefulStopMillis"`
}

// Worker hosts virtual users behind an in-process rpc.Client/rpc.Server
// pair and satisfies pool.Worker.
type Worker struct {
	id     int
	log    *logrus.Entry
	loader script.Loader

	transport *rpc.Transport
	client    *rpc.Client
	server    *rpc.Server
	cancel    context.CancelFunc

	mu         sync.Mutex
	scenarios  map[string]map[int]*vu.VirtualUser
	modules    map[string]script.Module
}

// New creates a Worker bound to id and starts its RPC server loop.
// loader resolves moduleURL -> script.Module the first time a scenario
// on this worker references it.
func New(id int, loader script.Loader, log *logrus.Entry) *Worker {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	transport := rpc.NewTransport(32)
	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		id:        id,
		log:       log,
		loader:    loader,
		transport: transport,
		client:    rpc.NewClient(transport, log),
		server:    rpc.NewServer(transport, log),
		cancel:    cancel,
		scenarios: make(map[string]map[int]*vu.VirtualUser),
		modules:   make(map[string]script.Module),
	}

	w.server.Register("setupWorker", w.handleSetupWorker)
	w.server.Register("iterations", w.handleIterations)
	w.server.Register("scenariosState", w.handleScenariosState)
	w.server.Register("metrics", w.handleMetrics)

	go w.server.Serve(ctx)

	return w
}

// NewFactory adapts New into a pool.Factory.
func NewFactory(loader script.Loader, log *logrus.Entry) pool.Factory {
	return func(id int) (pool.Worker, error) {
		return New(id, loader, log), nil
	}
}

// ID returns the worker's pool-assigned identity.
func (w *Worker) ID() int { return w.id }

// Call issues name(args) against this worker's RPC server.
func (w *Worker) Call(ctx context.Context, name string, args interface{}, timeout time.Duration) (json.RawMessage, error) {
	return w.client.Call(ctx, name, args, timeout)
}

// Terminate stops this worker's RPC client and server loops.
func (w *Worker) Terminate() {
	w.client.Terminate()
	w.cancel()
}

func (w *Worker) handleSetupWorker(ctx context.Context, args []byte) (interface{}, error) {
	var id int
	if err := json.Unmarshal(args, &id); err != nil {
		return nil, fmt.Errorf("worker: malformed setupWorker args: %w", err)
	}
	w.mu.Lock()
	w.log = w.log.WithField("worker", id)
	w.mu.Unlock()
	return nil, nil
}

func (w *Worker) handleIterations(ctx context.Context, args []byte) (interface{}, error) {
	var a IterationsArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("worker: malformed iterations args: %w", err)
	}

	module, err := w.resolveModule(a.ModuleURL)
	if err != nil {
		return nil, err
	}

	v := w.vuFor(a.ScenarioName, a.VuID)

	maxDuration := time.Duration(a.MaxDurationMillis) * time.Millisecond
	gracefulStop := time.Duration(a.GracefulStopMillis) * time.Millisecond

	v.DoIterations(ctx, module, a.NbIter, maxDuration, gracefulStop)
	return nil, nil
}

func (w *Worker) handleScenariosState(ctx context.Context, args []byte) (interface{}, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make(map[string]vu.ScenarioState, len(w.scenarios))
	for name, vus := range w.scenarios {
		var merged vu.ScenarioState
		for _, v := range vus {
			merged = merged.Merge(v.ScenarioState())
		}
		out[name] = merged
	}
	return out, nil
}

func (w *Worker) handleMetrics(ctx context.Context, args []byte) (interface{}, error) {
	w.mu.Lock()
	snapshots := make([]metrics.RegistryObj, 0)
	for _, vus := range w.scenarios {
		for _, v := range vus {
			snapshots = append(snapshots, v.Metrics())
		}
	}
	w.mu.Unlock()

	return metrics.Merge(snapshots...), nil
}

// vuFor locates or creates the VU for (scenarioName, vuId). A worker
// never holds more than one VU per pair; a second iterations call for
// the same pair reuses (and appends to) the existing VU.
func (w *Worker) vuFor(scenarioName string, vuID int) *vu.VirtualUser {
	w.mu.Lock()
	defer w.mu.Unlock()

	vus, ok := w.scenarios[scenarioName]
	if !ok {
		vus = make(map[int]*vu.VirtualUser)
		w.scenarios[scenarioName] = vus
	}

	v, ok := vus[vuID]
	if !ok {
		v = vu.New(vuID, w.log)
		vus[vuID] = v
	}
	return v
}

func (w *Worker) resolveModule(moduleURL string) (script.Module, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if m, ok := w.modules[moduleURL]; ok {
		return m, nil
	}

	m, err := w.loader.Load(moduleURL)
	if err != nil {
		return nil, err
	}
	w.modules[moduleURL] = m
	return m, nil
}
