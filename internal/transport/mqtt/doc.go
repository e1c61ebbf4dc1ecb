// Package mqtt adapts the paho MQTT client to the listener.
//
// The Client wraps connect, subscribe and publish with context-aware waits
// and turns the library's asynchronous callbacks (incoming messages and lost
// connections) into Events delivered on a single channel, so the listener can
// handle them one at a time from its own loop. Automatic reconnects of the
// library are disabled; reconnecting is the caller's job.
package mqtt
