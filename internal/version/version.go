// Package version holds build metadata stamped via -ldflags at release
// time; the zero values identify a local dev build.
package version

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)
