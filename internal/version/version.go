package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Name is the program name printed with the version.
const Name = "alarm-listener"

var (
	// Version is the semantic version of the build. It can be overridden via ldflags.
	Version = "1.0.0"
	// Commit is the short git SHA embedded at build time (or "none").
	Commit = "none"
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = "unknown"
)

// Short returns only the semantic version string.
func Short() string {
	return Version
}

// Full returns the program name, version, commit, build time and Go version.
func Full() string {
	return fmt.Sprintf("%s %s (commit: %s, built at: %s, %s)", Name, Version, commit(), BuildTime, runtime.Version())
}

// commit prefers the ldflags value and falls back to the VCS revision recorded by the toolchain.
func commit() string {
	if Commit != "none" {
		return Commit
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Commit
	}

	const shortRevision = 7

	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && len(setting.Value) >= shortRevision {
			return setting.Value[:shortRevision]
		}
	}

	return Commit
}
