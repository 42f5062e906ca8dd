// Package security holds the path containment check for the artifact
// file endpoint.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory reports whether path stays inside root
// once cleaned and resolved. Symlinked paths are resolved so a link
// inside root cannot point the request outside it.
func ValidatePathWithinDirectory(path, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(absRoot); err == nil {
		absRoot = resolved
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	// The target may not exist yet; resolve the deepest existing parent
	// so a symlinked intermediate directory cannot escape.
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		absPath = resolved
	} else if resolved, rest, ok := resolveExistingParent(absPath); ok {
		absPath = filepath.Join(resolved, rest)
	}

	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return fmt.Errorf("path outside permitted directory")
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path outside permitted directory")
	}
	return nil
}

func resolveExistingParent(path string) (resolved, rest string, ok bool) {
	dir := path
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", "", false
		}
		if r, err := filepath.EvalSymlinks(parent); err == nil {
			rel, err := filepath.Rel(parent, path)
			if err != nil {
				return "", "", false
			}
			return r, rel, true
		}
		dir = parent
	}
}
