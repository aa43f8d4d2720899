// Package version exposes build metadata of remo-automation.
//
// Variables Version, Commit, and BuildTime are injected at build time via
// Go ldflags and default to sensible values for local builds.
// Short and Full render the version for CLI output, UserAgent tags API
// requests and Fields adds build metadata to structured logs.
package version
