package runner

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// ResolveModuleURL implements spec.md §4.7 step 1: a reference that is
// already a URL (has a scheme) is returned unchanged; anything else is
// treated as a filesystem path, made absolute against the current
// working directory, and translated into a file:// URL.
func ResolveModuleURL(ref string) (string, error) {
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		return ref, nil
	}

	abs, err := filepath.Abs(ref)
	if err != nil {
		return "", fmt.Errorf("runner: resolve module path %q: %w", ref, err)
	}

	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("runner: module %q: %w", ref, err)
	}

	return "file://" + filepath.ToSlash(abs), nil
}
