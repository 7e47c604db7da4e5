// Package version holds build metadata injected through ldflags.
package version

import "fmt"

// Version contains the application version information.
// Set at build time:
// go build -ldflags "-X git.home.luguber.info/inful/statebridge/internal/version.Version=v0.3.0".
var Version = "unknown"

// BuildInfo contains additional build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String renders the version line printed by --version.
func String() string {
	return fmt.Sprintf("statebridge %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
