// Package config defines the listener settings and provides helpers to load,
// validate and save them in YAML format.
//
// Top-level string values may reference other top-level scalar keys with
// {key}; references are resolved once at load time.
package config
