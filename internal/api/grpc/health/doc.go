// Package health exposes the listener's broker connection through the
// standard gRPC health checking protocol (grpc.health.v1.Health).
package health
