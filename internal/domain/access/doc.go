// Package access contains the access-control domain types.
//
// A Token describes one RFID credential together with the alarm code that
// must accompany it and the date/time window in which it is accepted.
// A Registry holds the configured tokens and answers lookups by hardware
// identifier or by display name.
package access
