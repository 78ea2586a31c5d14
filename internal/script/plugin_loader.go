package script

import (
	"fmt"
	"path/filepath"
	"plugin"
	"strings"
)

// PluginLoaderSymbol is the exported symbol a .so built for PluginLoader
// must provide: either a Module value or a func() Module constructor.
const PluginLoaderSymbol = "SurgeModule"

// PluginLoader resolves a module path to a Go plugin (a .so file built
// with `go build -buildmode=plugin`) exporting PluginLoaderSymbol. It is
// the reference implementation of Loader; embedding callers that want a
// different resolution scheme (an in-process registry, a subprocess
// protocol) implement Loader themselves.
type PluginLoader struct{}

// Load opens the plugin at path and resolves PluginLoaderSymbol into a
// Module. path may carry a "file://" scheme (as produced by resolving a
// module reference against the current working directory); it is
// stripped before opening.
func (PluginLoader) Load(path string) (Module, error) {
	path = strings.TrimPrefix(path, "file://")

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &LoadError{Path: path, Reason: err.Error()}
	}

	p, err := plugin.Open(abs)
	if err != nil {
		return nil, &LoadError{Path: path, Reason: err.Error()}
	}

	sym, err := p.Lookup(PluginLoaderSymbol)
	if err != nil {
		return nil, &LoadError{Path: path, Reason: err.Error()}
	}

	switch v := sym.(type) {
	case Module:
		return v, nil
	case *Module:
		return *v, nil
	case func() Module:
		return v(), nil
	default:
		return nil, &LoadError{
			Path:   path,
			Reason: fmt.Sprintf("symbol %s has type %T, want script.Module, *script.Module, or func() script.Module", PluginLoaderSymbol, sym),
		}
	}
}
