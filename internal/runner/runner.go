package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/surgeload/surge/internal/config"
	"github.com/surgeload/surge/internal/executor"
	"github.com/surgeload/surge/internal/metrics"
	"github.com/surgeload/surge/internal/output"
	"github.com/surgeload/surge/internal/pool"
	"github.com/surgeload/surge/internal/scenario"
	"github.com/surgeload/surge/internal/script"
	"github.com/surgeload/surge/internal/vu"
	"github.com/surgeload/surge/internal/worker"
)

// Runner implements the eleven-step algorithm of spec.md §4.7: resolve
// and load a module, validate its options, run one executor per
// scenario behind a shared worker pool, print live progress, merge
// metrics, evaluate the threshold, and report pass/fail.
type Runner struct {
	ModuleRef string
	Loader    script.Loader
	Settings  config.Settings
	Log       *logrus.Entry
	Out       io.Writer
}

// named pairs a scenario name with its running executor, preserving
// options.Scenarios' declaration order for the progress printer.
type named struct {
	name string
	exec executor.Executor
}

// Run executes steps 1-11 of spec.md §4.7 and returns the pass/fail
// verdict that drives the process exit code. A returned error means a
// structural failure (ConfigurationError, ModuleLoadError); the boolean
// is the verdict produced once the run did start (false for a threshold
// failure or an executor RunError).
func (r *Runner) Run(ctx context.Context) (bool, error) {
	log := r.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	out := r.Out
	if out == nil {
		out = os.Stdout
	}

	start := time.Now()

	moduleURL, err := ResolveModuleURL(r.ModuleRef)
	if err != nil {
		return false, err
	}

	module, err := r.Loader.Load(moduleURL)
	if err != nil {
		return false, fmt.Errorf("runner: %w", err)
	}

	opts, err := module.Options()
	if err != nil {
		return false, &scenario.ConfigurationError{Reason: err.Error()}
	}
	if err := opts.Validate(); err != nil {
		return false, err
	}
	if err := validateSchema(opts); err != nil {
		return false, err
	}

	p := pool.New(pool.Config{
		MinWorker:         r.Settings.MinWorker,
		MaxWorker:         r.Settings.MaxWorker,
		MaxTasksPerWorker: r.Settings.MaxTasksPerWorker,
		NewWorker:         worker.NewFactory(r.Loader, log),
		Log:               log,
	})
	defer p.Terminate()

	executors := make([]named, 0, len(opts.Scenarios))
	for _, s := range opts.Scenarios {
		exec, err := executor.New(p, moduleURL, s.Name, s.Options, r.Settings.RPCSlack)
		if err != nil {
			return false, &scenario.ConfigurationError{Reason: err.Error()}
		}
		executors = append(executors, named{name: s.Name, exec: exec})
	}

	printer := output.New(out)
	printer.Start()
	live := &livePreview{}
	stopProgress := r.startProgressPrinter(ctx, p, executors, printer, live)

	runErr := r.runExecutors(ctx, executors)
	if runErr != nil {
		log.WithError(runErr).Error("runner: scenario executor failed")
	}

	close(stopProgress)
	printer.Clear()

	report, err := r.collectReport(ctx, p)
	if err != nil {
		log.WithError(err).Warn("runner: metrics collection failed")
	}

	passed := runErr == nil

	if opts.Threshold != nil {
		if thresholdErr := r.evaluateThreshold(opts.Threshold, report); thresholdErr != nil {
			log.WithError(thresholdErr).Error("threshold failed")
			passed = false
		}
	}

	output.PrintReport(out, report)
	output.PrintVerdict(out, passed, time.Since(start))

	return passed, nil
}

// runExecutors runs every scenario's executor concurrently and waits
// for all of them to settle, per spec.md §4.7 step 5 ("await all
// executors, settled not all").
func (r *Runner) runExecutors(ctx context.Context, executors []named) error {
	var wg sync.WaitGroup
	errs := make([]error, len(executors))

	for i, n := range executors {
		wg.Add(1)
		go func(i int, n named) {
			defer wg.Done()
			errs[i] = n.exec.Execute(ctx)
		}(i, n)
	}
	wg.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return &RunFailure{Errors: failed}
	}
	return nil
}

// livePreview tracks how many of the merged "iterations" trend's "_"
// observations have already been fed into the printer's live HDR
// histogram, so each tick only observes newly-completed iterations
// instead of re-feeding the whole run's history every second.
type livePreview struct {
	seen int
}

// startProgressPrinter polls scenariosState on every worker roughly
// every ProgressInterval, merges per scenario, and redraws the live
// display. It returns a channel whose close stops the ticker.
func (r *Runner) startProgressPrinter(ctx context.Context, p *pool.Pool, executors []named, printer *output.Printer, live *livePreview) chan struct{} {
	stop := make(chan struct{})
	interval := r.Settings.ProgressInterval
	if interval <= 0 {
		interval = time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.renderOnce(ctx, p, executors, printer, live)
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return stop
}

func (r *Runner) renderOnce(ctx context.Context, p *pool.Pool, executors []named, printer *output.Printer, live *livePreview) {
	states := mergeScenarioStates(p.ForEachWorker(ctx, "scenariosState", nil, 5*time.Second))
	r.observeLivePreview(ctx, p, printer, live)

	var currentVUs, maxVUs int
	var completed int64
	progresses := make([]output.ScenarioProgress, 0, len(executors))

	for _, n := range executors {
		state := states[n.name]
		prog := n.exec.Progress(state)
		currentVUs += n.exec.CurrentVUs()
		maxVUs += n.exec.MaxVUs()
		completed += state.Success + state.Fail

		progresses = append(progresses, output.ScenarioProgress{
			Name:       n.name,
			Percentage: prog.Percentage,
			Aborted:    prog.Aborted,
			ExtraInfo:  prog.ExtraInfo,
		})
	}

	printer.Render(currentVUs, maxVUs, completed, progresses)
}

// observeLivePreview pulls the in-progress "iterations" trend across all
// workers and feeds every observation not yet seen into the printer's
// non-authoritative HDR histogram, so the live summary line's p95 tracks
// the run as it happens. The authoritative report (collectReport) never
// reads from this histogram.
func (r *Runner) observeLivePreview(ctx context.Context, p *pool.Pool, printer *output.Printer, live *livePreview) {
	outcomes := p.ForEachWorker(ctx, "metrics", nil, 5*time.Second)

	snapshots := make([]metrics.RegistryObj, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil {
			continue
		}
		var snap metrics.RegistryObj
		if err := decodeJSON(o.Result, &snap); err != nil {
			continue
		}
		snapshots = append(snapshots, snap)
	}

	merged := metrics.Merge(snapshots...)
	values := merged.Trends["iterations"][metrics.AllTag]
	if live.seen >= len(values) {
		return
	}
	for _, v := range values[live.seen:] {
		printer.Observe(v)
	}
	live.seen = len(values)
}

// mergeScenarioStates decodes every worker's scenariosState response
// and merges per scenario name. A worker outcome whose RPC failed is
// skipped (it contributes no VUs this tick, not a hard error — the
// progress display is best-effort).
func mergeScenarioStates(outcomes []pool.Outcome) map[string]vu.ScenarioState {
	merged := make(map[string]vu.ScenarioState)
	for _, o := range outcomes {
		if o.Err != nil || o.Result == nil {
			continue
		}
		var states map[string]vu.ScenarioState
		if err := decodeJSON(o.Result, &states); err != nil {
			continue
		}
		for name, s := range states {
			merged[name] = merged[name].Merge(s)
		}
	}
	return merged
}

// collectReport merges every worker's metrics registry and builds the
// report at the standard {50,90,95,99} percentiles, per spec.md §4.7
// step 7.
func (r *Runner) collectReport(ctx context.Context, p *pool.Pool) (metrics.Report, error) {
	outcomes := p.ForEachWorker(ctx, "metrics", nil, 5*time.Second)

	snapshots := make([]metrics.RegistryObj, 0, len(outcomes))
	var firstErr error
	for _, o := range outcomes {
		if o.Err != nil {
			if firstErr == nil {
				firstErr = o.Err
			}
			continue
		}
		var snap metrics.RegistryObj
		if err := decodeJSON(o.Result, &snap); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		snapshots = append(snapshots, snap)
	}

	merged := metrics.Merge(snapshots...)
	return metrics.BuildReport(merged, metrics.DefaultPercentiles), firstErr
}

// evaluateThreshold calls the module's opaque threshold function,
// recovering a panic the way the worker RPC server does, per spec.md
// §4.7 step 8 ("a throw marks the run failed").
func (r *Runner) evaluateThreshold(threshold scenario.ThresholdFunc, report metrics.Report) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &ThresholdFailure{Reason: fmt.Sprintf("%v", rec)}
		}
	}()
	if tErr := threshold(report); tErr != nil {
		return &ThresholdFailure{Reason: tErr.Error()}
	}
	return nil
}

// decodeJSON unmarshals a worker RPC's raw result into v, treating a nil
// result as a no-op (a worker that never hosted any VU for this RPC
// returns nil rather than an empty object).
func decodeJSON(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
