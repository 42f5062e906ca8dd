package watcher

import (
	"path/filepath"
	"strings"

	"github.com/imudex/imudex/internal/manifest"
)

// Class is the reindex pipeline a filesystem event maps to. The two
// classes debounce and run independently of each other.
type Class int

const (
	// ClassManifest covers metadata.json changes under the data root.
	ClassManifest Class = iota
	// ClassOptimization covers optimization artifact changes.
	ClassOptimization

	numClasses
)

// String returns the tag used in logs.
func (c Class) String() string {
	if c == ClassOptimization {
		return "optimization"
	}
	return "manifest"
}

var artifactExts = map[string]bool{
	".m":   true,
	".mat": true,
	".png": true,
}

// Classify maps a changed path to its reindex class. Paths that belong
// to neither class are ignored; returning ok=false means no reindex is
// scheduled for the event.
func Classify(path string) (Class, bool) {
	base := filepath.Base(path)
	if base == manifest.FileName {
		return ClassManifest, true
	}

	if !artifactExts[strings.ToLower(filepath.Ext(base))] {
		return 0, false
	}
	if hasCategorySegment(path) {
		return ClassOptimization, true
	}
	// Legacy layouts put the strategy tag in the filename instead of a
	// category folder.
	if strings.Contains(strings.ToLower(base), "strategy") {
		return ClassOptimization, true
	}
	return 0, false
}

func hasCategorySegment(path string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		switch strings.ToLower(seg) {
		case "parameter", "results", "graph":
			return true
		}
	}
	return false
}
