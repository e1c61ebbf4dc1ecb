// Package version exposes build metadata of alarm-listener.
//
// Version, Commit and BuildTime are injected with -ldflags at build time;
// local builds fall back to the module build info.
package version
