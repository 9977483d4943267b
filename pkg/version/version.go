// Package version holds build information set with -ldflags
package version

import "fmt"

var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// String returns a one-line build description
func String() string {
	return fmt.Sprintf("sqlsweep %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
