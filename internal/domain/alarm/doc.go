// Package alarm contains the alarm-state domain types.
//
// StateStore keeps the last alarm state reported by the alarm panel. The
// relay is its only writer; the raw payload is decoded with backslash-escape
// unescaping before it is stored.
package alarm
