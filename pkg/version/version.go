// Package version provides build and version information for imudex.
package version

import (
	"fmt"
	"runtime"
)

// Version is the current version, set via ldflags at build time:
// -X github.com/imudex/imudex/pkg/version.Version=$(VERSION)
var Version = "dev"

var (
	// Commit is the git commit hash, set via ldflags.
	Commit = "unknown"

	// Date is the build date in RFC3339 format, set via ldflags.
	Date = "unknown"

	// GoVersion is the Go version the binary was built with.
	GoVersion = runtime.Version()
)

// String returns the full version line.
func String() string {
	return fmt.Sprintf("imudex %s (commit %s, built %s, %s)", Version, Commit, Date, GoVersion)
}
