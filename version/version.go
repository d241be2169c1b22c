// Package version holds build-time metadata set via -ldflags and formats it
// for kingpin's --version flag.
package version

import "fmt"

// Set via -ldflags "-X github.com/autobib/autobib/version.Version=... -X .../Commit=... -X .../BuildDate=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Print formats a one-line version banner for program name.
func Print(name string) string {
	return fmt.Sprintf("%s version %s (commit %s, built %s)", name, Version, Commit, BuildDate)
}
