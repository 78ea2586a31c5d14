package scenario

import (
	"fmt"
	"time"
)

// Kind names one of the three supported executor policies.
type Kind string

const (
	PerVUIterations  Kind = "per-vu-iterations"
	SharedIterations Kind = "shared-iterations"
	ConstantVUs      Kind = "constant-vus"
)

func (k Kind) valid() bool {
	switch k {
	case PerVUIterations, SharedIterations, ConstantVUs:
		return true
	default:
		return false
	}
}

// DefaultGracefulStop is used when a scenario omits GracefulStop.
const DefaultGracefulStop = Duration(30 * time.Second)

// ScenarioOptions is one named workload shape. Which fields are required
// depends on Executor: see Validate.
type ScenarioOptions struct {
	Executor Kind `json:"executor"`

	// VUs is the concurrency level for all three executors.
	VUs int `json:"vus"`

	// Iterations bounds total work for per-vu-iterations (per VU) and
	// shared-iterations (across all VUs). Unused by constant-vus.
	Iterations int `json:"iterations,omitempty"`

	// Duration is the wall-clock run length for constant-vus. Unused by
	// the other two executors.
	Duration Duration `json:"duration,omitempty"`

	// MaxDuration bounds a single iterations RPC batch for
	// per-vu-iterations and shared-iterations. Zero means unbounded.
	MaxDuration Duration `json:"maxDuration,omitempty"`

	// GracefulStop is the extra wall-clock time an in-flight iteration
	// is given to finish once MaxDuration (or Duration) expires.
	GracefulStop Duration `json:"gracefulStop,omitempty"`
}

// NamedScenario pairs a scenario's name with its options, preserving the
// declaration order options.Scenarios was built in.
type NamedScenario struct {
	Name    string
	Options ScenarioOptions
}

// ThresholdFunc evaluates a final report and returns an error to fail
// the run. report is passed as interface{} here to avoid an import
// cycle with internal/metrics; callers type-assert to metrics.Report.
type ThresholdFunc func(report interface{}) error

// Options is the full options object a test module exports: its
// scenarios in declaration order, plus an optional threshold.
type Options struct {
	Scenarios []NamedScenario
	Threshold ThresholdFunc
}

// Scenario looks up a named scenario, preserving the "ordered map"
// semantics of spec.md's options object.
func (o Options) Scenario(name string) (ScenarioOptions, bool) {
	for _, s := range o.Scenarios {
		if s.Name == name {
			return s.Options, true
		}
	}
	return ScenarioOptions{}, false
}

// Validate rejects malformed options before any worker is spawned,
// consolidating spec.md's "unknown executor" and "constant-vus lacking
// duration" checks into one pass.
func (o Options) Validate() error {
	if len(o.Scenarios) == 0 {
		return &ConfigurationError{Reason: "options.scenarios is empty"}
	}
	seen := make(map[string]bool, len(o.Scenarios))
	for _, s := range o.Scenarios {
		if seen[s.Name] {
			return &ConfigurationError{Reason: fmt.Sprintf("duplicate scenario name %q", s.Name)}
		}
		seen[s.Name] = true

		if err := s.Options.validate(s.Name); err != nil {
			return err
		}
	}
	return nil
}

func (s ScenarioOptions) validate(name string) error {
	if !s.Executor.valid() {
		return &ConfigurationError{Reason: fmt.Sprintf("scenario %q: unknown executor %q", name, s.Executor)}
	}
	if s.VUs <= 0 {
		return &ConfigurationError{Reason: fmt.Sprintf("scenario %q: vus must be positive", name)}
	}

	switch s.Executor {
	case PerVUIterations:
		if s.Iterations <= 0 {
			return &ConfigurationError{Reason: fmt.Sprintf("scenario %q: per-vu-iterations requires iterations > 0", name)}
		}
	case SharedIterations:
		if s.Iterations <= 0 {
			return &ConfigurationError{Reason: fmt.Sprintf("scenario %q: shared-iterations requires iterations > 0", name)}
		}
		if s.MaxDuration <= 0 {
			return &ConfigurationError{Reason: fmt.Sprintf("scenario %q: shared-iterations requires maxDuration > 0", name)}
		}
	case ConstantVUs:
		if s.Duration <= 0 {
			return &ConfigurationError{Reason: fmt.Sprintf("scenario %q: constant-vus requires duration > 0", name)}
		}
	}
	return nil
}

// GracefulStopOrDefault returns GracefulStop, or DefaultGracefulStop if
// the scenario left it unset.
func (s ScenarioOptions) GracefulStopOrDefault() Duration {
	if s.GracefulStop <= 0 {
		return DefaultGracefulStop
	}
	return s.GracefulStop
}
