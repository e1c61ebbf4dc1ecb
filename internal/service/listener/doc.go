// Package listener runs the alarm listener: it owns the broker connection
// lifecycle, routes inbound messages to the relay and the authorizer and
// wires the process together from the configuration file.
package listener
