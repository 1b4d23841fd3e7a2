//go:build unix

package transport

import (
	"golang.org/x/sys/unix"
)

type platformHelper struct{}

func (platformHelper) SetReuseAddr(fd uintptr, on bool) error {
	v := 0
	if on {
		v = 1
	}
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, v)
}

func (platformHelper) ReuseAddr(fd uintptr) (bool, error) {
	v, err := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}
