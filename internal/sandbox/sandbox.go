// Package sandbox confines tool filesystem access to a single directory.
package sandbox

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathEscape is returned when a resolved path leaves the sandbox root.
var ErrPathEscape = errors.New("sandbox: path escapes workdir")

// Root is the fixed directory all tool paths are resolved against.
// It is set once at process start and never mutated.
type Root struct {
	dir string
}

// NewRoot creates a Root for an absolute directory path.
func NewRoot(dir string) (*Root, error) {
	if !filepath.IsAbs(dir) {
		return nil, fmt.Errorf("sandbox.NewRoot: %q is not absolute", dir)
	}
	return &Root{dir: filepath.Clean(dir)}, nil
}

// Dir returns the sandbox root directory.
func (r *Root) Dir() string {
	return r.dir
}

// Resolve joins a user-supplied relative path with the root and normalizes it.
// The check is textual containment over the cleaned path, with no symlink
// resolution: any path whose normalized form leaves the root is rejected
// outright. Pure function over strings plus the root constant.
func (r *Root) Resolve(rel string) (string, error) {
	// An absolute input is taken as-is so that the containment check, not
	// path joining, decides its fate.
	abs := rel
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(r.dir, rel)
	}
	abs = filepath.Clean(abs)
	if abs != r.dir && !strings.HasPrefix(abs, r.dir+string(filepath.Separator)) {
		return "", fmt.Errorf("sandbox.Root.Resolve(%q): %w", rel, ErrPathEscape)
	}
	return abs, nil
}
