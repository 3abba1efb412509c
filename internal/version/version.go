// Package version holds build metadata injected with -ldflags.
package version

var (
	// Version is overridden at link time with -X.
	Version = "v0.1.0-dev"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)
