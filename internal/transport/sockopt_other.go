//go:build !unix

package transport

import (
	"errors"
)

var errUnsupported = errors.New("SO_REUSEADDR is not supported on this platform")

type platformHelper struct{}

func (platformHelper) SetReuseAddr(uintptr, bool) error {
	return errUnsupported
}

func (platformHelper) ReuseAddr(uintptr) (bool, error) {
	return false, errUnsupported
}
