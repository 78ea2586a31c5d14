package executor

import (
	"fmt"
	"time"

	"github.com/surgeload/surge/internal/scenario"
)

// New creates the Executor named by opts.Executor for one scenario.
// Validate should already have rejected an unknown executor kind or
// missing required field before this is called; New itself only
// switches on the (already-valid) kind.
func New(caller Caller, moduleURL, scenarioName string, opts scenario.ScenarioOptions, rpcSlack time.Duration) (Executor, error) {
	switch opts.Executor {
	case scenario.PerVUIterations:
		return NewPerVUIterations(caller, moduleURL, scenarioName, opts, rpcSlack), nil
	case scenario.SharedIterations:
		return NewSharedIterations(caller, moduleURL, scenarioName, opts, rpcSlack), nil
	case scenario.ConstantVUs:
		return NewConstantVUs(caller, moduleURL, scenarioName, opts, rpcSlack), nil
	default:
		return nil, fmt.Errorf("executor: unknown executor kind %q", opts.Executor)
	}
}
