// Package build holds version information set at link time. It has no
// dependencies on other internal packages.
package build

import (
	"fmt"
	"runtime"
)

// Set via -ldflags "-X github.com/vertex-deployer/deployer/internal/build.Version=..."
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// IsDevBuild reports whether the binary was built without release flags.
func IsDevBuild() bool {
	return Version == "dev"
}

// Info is the one-line version summary.
func Info() string {
	return fmt.Sprintf("vertex-deployer %s (commit %s, built %s, %s %s/%s)",
		Version, Commit, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
