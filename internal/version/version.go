// Package version holds the build version of the phase binaries.
package version

// Version is set at build time with
// -ldflags "-X github.com/phase-edms/phase/internal/version.Version=...".
var Version = "0.1.0-dev"
