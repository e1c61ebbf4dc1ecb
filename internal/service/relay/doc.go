// Package relay forwards alarm state changes to the displays.
//
// Every state message is decoded into the StateStore and the decoded value is
// republished, retained, on the display topic so that displays connecting
// later receive the last known state at once.
package relay
