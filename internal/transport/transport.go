// Package transport contains low-level socket option helpers for the
// connection layer. The standard net package covers keep-alive, linger and
// no-delay; the options here need the raw descriptor.
package transport

import (
	"syscall"
)

// SocketHelper is implemented by the platform helpers.
type SocketHelper interface {
	SetReuseAddr(fd uintptr, on bool) error
	ReuseAddr(fd uintptr) (bool, error)
}

// Default is the helper for the running platform.
var Default SocketHelper = platformHelper{}

// ListenControl returns a net.ListenConfig Control hook that sets
// SO_REUSEADDR before the socket is bound.
func ListenControl(on bool) func(network, address string, c syscall.RawConn) error {
	return func(_, _ string, c syscall.RawConn) error {
		var opErr error
		if err := c.Control(func(fd uintptr) {
			opErr = Default.SetReuseAddr(fd, on)
		}); err != nil {
			return err
		}
		return opErr
	}
}

// SetReuseAddr sets SO_REUSEADDR on a live socket.
func SetReuseAddr(c syscall.Conn, on bool) error {
	raw, err := c.SyscallConn()
	if err != nil {
		return err
	}
	var opErr error
	if err := raw.Control(func(fd uintptr) {
		opErr = Default.SetReuseAddr(fd, on)
	}); err != nil {
		return err
	}
	return opErr
}

// ReuseAddr reads SO_REUSEADDR from a live socket.
func ReuseAddr(c syscall.Conn) (bool, error) {
	raw, err := c.SyscallConn()
	if err != nil {
		return false, err
	}
	var (
		on    bool
		opErr error
	)
	if err := raw.Control(func(fd uintptr) {
		on, opErr = Default.ReuseAddr(fd)
	}); err != nil {
		return false, err
	}
	return on, opErr
}
