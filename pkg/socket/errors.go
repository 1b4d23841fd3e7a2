/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package socket

import (
	"errors"
	"io"

	"github.com/srediag/tcpsock/api"
	"github.com/srediag/tcpsock/pkg/ringbuf"
)

var (
	// ErrTimeout means the operation did not finish within its budget.
	// It is not fatal; the caller may retry.
	ErrTimeout = ringbuf.ErrTimeout

	// ErrClosed is returned for operations on a closed Conn.
	ErrClosed = errors.New("closed")

	// ErrEndOfStream is returned by reads once the peer closed its side.
	ErrEndOfStream = io.EOF

	// ErrNotClient is returned when a client operation is used on a conn
	// that is not connected.
	ErrNotClient = errors.New("not a client socket")

	// ErrNotServer is returned when Accept is used on a conn that is not bound.
	ErrNotServer = errors.New("not a server socket")

	// ErrAlreadyInitialized is returned by Connect and Bind on a conn that
	// already has a role.
	ErrAlreadyInitialized = errors.New("socket already initialized")

	// ErrSelectInProgress is returned by Select when one of the conns is
	// already watched by another Select call.
	ErrSelectInProgress = errors.New("socket is already watched by another select")

	ErrUnsupportedPattern = api.ErrUnsupportedPattern
	ErrUnsupportedOption  = errors.New("unsupported option")
	ErrInvalidTimeoutKind = errors.New("invalid timeout kind")
	ErrInvalidDirection   = errors.New("invalid shutdown direction")
	ErrNotConnected       = errors.New("not connected")
)

// TransportError wraps a failure of the underlying socket.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func transportErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}
