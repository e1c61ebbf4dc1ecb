// Package authorizer decides RFID authorization requests.
//
// A request names a token uid, the code typed on the reader, the reader's
// hostname and the action to perform. The decision is always published back
// to the reader; a granted decision additionally sends the action's command
// payload to the panel after a fixed delay.
package authorizer
