// Package audit implements the append-only log of access decisions.
//
// The SQLiteRepository stores every decision in a local SQLite database and
// exposes a Repository interface that the authorizer depends on.
package audit
