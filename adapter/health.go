// Package adapter exposes a socket Library to external monitoring systems.
package adapter

import (
	"errors"
	"fmt"
	"os"

	"github.com/heptiolabs/healthcheck"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/srediag/tcpsock/pkg/socket"
)

// FDCounter returns the number of descriptors the process holds open.
type FDCounter func() (int, error)

// ProcessFDs counts the descriptors of the running process.
func ProcessFDs() (int, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	n, err := p.NumFDs()
	return int(n), err
}

// NewHealthHandler returns a handler serving /live and /ready for lib.
//
// Liveness fails once the library is closed or the process holds more than
// Config.MaxOpenFiles descriptors. Readiness fails when the pump pool
// refuses new work.
func NewHealthHandler(lib *socket.Library) healthcheck.Handler {
	return newHealthHandler(lib, ProcessFDs)
}

func newHealthHandler(lib *socket.Library, fds FDCounter) healthcheck.Handler {
	h := healthcheck.NewHandler()
	h.AddLivenessCheck("library-open", func() error {
		if lib.Closed() {
			return errors.New("library closed")
		}
		return nil
	})
	h.AddLivenessCheck("open-fds", fdCheck(lib.Config().MaxOpenFiles, fds))
	h.AddReadinessCheck("executor", func() error {
		if lib.Closed() {
			return errors.New("library closed")
		}
		return lib.Executor().Submit(func() {})
	})
	return h
}

func fdCheck(limit int, fds FDCounter) healthcheck.Check {
	return func() error {
		if limit <= 0 {
			return nil
		}
		n, err := fds()
		if err != nil {
			// not every platform can count descriptors
			return nil
		}
		if n > limit {
			return fmt.Errorf("%d open descriptors, limit %d", n, limit)
		}
		return nil
	}
}
