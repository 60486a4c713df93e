// Package version exposes build-time version information for tmserver.
package version

import "fmt"

// Set via ldflags during build:
//
//	go build -ldflags "-X github.com/tissuemaps/tmserver/internal/version.Version=..."
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String returns a single-line human readable version string.
func String() string {
	return fmt.Sprintf("tm_server %s (commit %s, built %s)", Version, Commit, Date)
}
