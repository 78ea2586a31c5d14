package script

import (
	"context"

	"github.com/surgeload/surge/internal/scenario"
)

// FuncModule adapts two plain functions into a Module, for embedding
// callers and tests that don't need a full type.
type FuncModule struct {
	OptionsFunc func() (scenario.Options, error)
	RunFunc     func(ctx context.Context, vuID, iteration int) error
}

func (m FuncModule) Options() (scenario.Options, error) { return m.OptionsFunc() }

func (m FuncModule) RunIteration(ctx context.Context, vuID, iteration int) error {
	return m.RunFunc(ctx, vuID, iteration)
}

// StaticLoader always resolves to the same pre-constructed Module,
// ignoring the requested path. Useful when the module is already
// in-process (embedding) or in tests that don't want to build a real
// plugin.
type StaticLoader struct {
	Module Module
}

func (l StaticLoader) Load(path string) (Module, error) {
	if l.Module == nil {
		return nil, &LoadError{Path: path, Reason: "no module configured"}
	}
	return l.Module, nil
}
