// Package pidfile keeps a single listener instance running per host.
//
// Acquire writes the current PID into <dir>/<name>.pid. A file left behind by
// a process that is no longer running is reclaimed; a file owned by a live
// process makes Acquire fail with ErrAlreadyLocked.
package pidfile
