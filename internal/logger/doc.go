// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a console encoder and an optional log file,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level configuration from names or from a -v style verbosity count,
//   - convenience functions (Infof, ErrorKV, etc.).
//
// All services accept a context and extract the logger from it, enabling
// scoped, structured logging throughout the codebase.
package logger
