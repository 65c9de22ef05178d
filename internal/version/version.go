// Package version holds build-time version information for the arandu binary.
// The variables in this package are populated at build time via -ldflags:
//
//	go build -ldflags="-X github.com/mgruene/ARANDU-PUB/internal/version.Version=v0.4.0 \
//	                    -X github.com/mgruene/ARANDU-PUB/internal/version.Commit=abc1234 \
//	                    -X github.com/mgruene/ARANDU-PUB/internal/version.BuildDate=2026-01-01"
//
// Without ldflags the values fall back to readable defaults.
package version

import "fmt"

// Version is the semantic version of the binary. Defaults to "dev".
var Version = "dev"

// Commit is the short git SHA the binary was built from.
var Commit = "unknown"

// BuildDate is the UTC build date in RFC3339 format.
var BuildDate = "unknown"

// String renders the build info on one line, as printed by `arandu version`.
func String() string {
	return fmt.Sprintf("arandu %s (commit %s, built %s)", Version, Commit, BuildDate)
}
