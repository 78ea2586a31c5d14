package script

import (
	"context"

	"github.com/surgeload/surge/internal/scenario"
)

// Module is the only contract a test module must satisfy: it describes
// its scenarios and threshold, and it runs one iteration at a time.
// RunIteration is invoked repeatedly and concurrently across VUs; it
// must not retain state keyed only by vuID across calls beyond what the
// caller's own bookkeeping expects — the engine runs one VU's
// iterations sequentially, but different VUs run concurrently.
type Module interface {
	// Options returns the scenarios and optional threshold this module
	// wants run. Called once, before any VU starts.
	Options() (scenario.Options, error)

	// RunIteration executes one invocation of the module's default
	// function for virtual user vuID, iteration index iteration. A
	// returned error is attributed to the iteration as a failure; ctx
	// carries the VU's instrumented HTTP client and is cancelled when
	// the batch's maxDuration deadline expires. Graceful stop does not
	// delay that cancellation; it only bounds how long the VU waits for
	// RunIteration to return afterwards.
	RunIteration(ctx context.Context, vuID, iteration int) error
}

// Loader resolves a module path or URL to a Module.
type Loader interface {
	Load(path string) (Module, error)
}
