// Package api defines the contracts between the connection layer and the
// binding layers built on top of it.
package api

import (
	"context"
)

// Executor schedules background work. Connections hold an Executor rather
// than the library that created them.
type Executor interface {
	Submit(task func()) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(task func()) error

// Submit calls f(task).
func (f ExecutorFunc) Submit(task func()) error {
	return f(task)
}

// Socket is the handle exposed to binding layers. Timeouts are taken from
// the socket's own settings; see SetTimeout.
type Socket interface {
	Connect(ctx context.Context, host string, port int) error
	Bind(ctx context.Context, host string, port int) error
	Listen() error

	// Receive reads according to p and returns prefix followed by the data.
	// On failure the bytes read so far are still returned with the error.
	Receive(ctx context.Context, p Pattern, prefix []byte) ([]byte, error)

	// Send writes data[offset:offset+length] and returns the number of bytes
	// accepted, which is short when the error is a timeout.
	Send(ctx context.Context, data []byte, offset, length int) (int, error)

	// Shutdown half-closes the connection: "both", "send" or "receive".
	Shutdown(direction string) error
	Close() error

	SetOption(name string, value any) error

	// SetTimeout sets the single ("b", "single") or total ("t", "total")
	// timeout in whole seconds. Negative waits forever.
	SetTimeout(seconds int, kind string) error

	PeerAddr() (host string, port int, err error)
	LocalAddr() (host string, port int, err error)

	Stats() (received, sent, ageSeconds int64)
	SetStats(received, sent, ageSeconds int64)
}
