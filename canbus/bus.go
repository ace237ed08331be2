// Package canbus provides the shared-bus transport the rest of the tools
// talk through: a small Bus interface with a SocketCAN implementation for
// real hardware and an in-memory loopback for tests and simulation.
package canbus

import (
	"errors"
	"time"

	"go.einride.tech/can"
)

// ErrClosed indicates the bus has been closed.
var ErrClosed = errors.New("canbus: bus closed")

// Bus is a connection to the shared CAN bus.
//
// Receive waits up to timeout for the next frame; a zero or negative timeout
// polls without blocking. The boolean result is false when no frame arrived
// in time, which is an expected miss rather than an error. Errors are
// reserved for transport failures.
//
// Implementations must serialize concurrent Send calls, but the
// request/response pairing of higher layers assumes a single goroutine owns
// the Send+Receive sequence at a time.
type Bus interface {
	Send(frame can.Frame) error
	Receive(timeout time.Duration) (can.Frame, bool, error)
	Close() error
}

// Drain consumes every frame already buffered on the bus and returns how
// many were discarded. Discovery uses it to avoid counting stale traffic.
func Drain(bus Bus) (int, error) {
	n := 0
	for {
		_, ok, err := bus.Receive(0)
		if err != nil {
			return n, err
		}
		if !ok {
			return n, nil
		}
		n++
	}
}
