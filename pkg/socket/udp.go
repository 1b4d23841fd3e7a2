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
	"net"
	"os"
	"strconv"
	"sync"
	"time"
)

const maxDatagramSize = 8192

// UDPConn is a plain blocking UDP socket. It has no pumps and no select
// support; operations block on the socket itself for at most the timeout.
type UDPConn struct {
	id  uint64
	lib *Library

	mu        sync.Mutex
	pc        *net.UDPConn
	connected bool
	closed    bool
	timeout   time.Duration
}

// SetTimeout sets the receive timeout in seconds. Negative waits forever.
// Zero is raised to one millisecond, the shortest wait the socket supports.
func (u *UDPConn) SetTimeout(seconds int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	switch {
	case seconds < 0:
		u.timeout = -1
	case seconds == 0:
		u.timeout = time.Millisecond
	default:
		u.timeout = time.Duration(seconds) * time.Second
	}
}

// SetSockName binds the socket to host:port; "*" binds every interface.
func (u *UDPConn) SetSockName(host string, port int) error {
	if host == "*" {
		host = "0.0.0.0"
	}
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return transportErr("resolve", err)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return ErrClosed
	}
	if u.pc != nil {
		return ErrAlreadyInitialized
	}
	pc, err := net.ListenUDP("udp", addr)
	if err != nil {
		return transportErr("bind", err)
	}
	u.pc = pc
	return nil
}

// SetPeerName connects the socket to host:port. Only datagrams from the peer
// are received afterwards.
func (u *UDPConn) SetPeerName(host string, port int) error {
	raddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return transportErr("resolve", err)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return ErrClosed
	}
	var laddr *net.UDPAddr
	if u.pc != nil {
		laddr, _ = u.pc.LocalAddr().(*net.UDPAddr)
		_ = u.pc.Close()
		u.pc = nil
	}
	pc, err := net.DialUDP("udp", laddr, raddr)
	if err != nil {
		return transportErr("connect", err)
	}
	u.pc, u.connected = pc, true
	return nil
}

func (u *UDPConn) socket() (*net.UDPConn, bool, time.Duration, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil, false, 0, ErrClosed
	}
	if u.pc == nil {
		pc, err := net.ListenUDP("udp", nil)
		if err != nil {
			return nil, false, 0, transportErr("bind", err)
		}
		u.pc = pc
	}
	return u.pc, u.connected, u.timeout, nil
}

// Send sends p to the connected peer.
func (u *UDPConn) Send(p []byte) (int, error) {
	pc, connected, _, err := u.socket()
	if err != nil {
		return 0, err
	}
	if !connected {
		return 0, ErrNotConnected
	}
	n, err := pc.Write(p)
	return n, transportErr("send", err)
}

// SendTo sends p to host:port. It fails on a connected socket.
func (u *UDPConn) SendTo(p []byte, host string, port int) (int, error) {
	pc, connected, _, err := u.socket()
	if err != nil {
		return 0, err
	}
	if connected {
		return 0, ErrAlreadyInitialized
	}
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return 0, transportErr("resolve", err)
	}
	n, err := pc.WriteToUDP(p, addr)
	return n, transportErr("sendto", err)
}

// Receive returns the next datagram, truncated to size bytes (8192 if size
// is not positive).
func (u *UDPConn) Receive(size int) ([]byte, error) {
	b, _, err := u.receive(size)
	return b, err
}

// ReceiveFrom is Receive that also reports the sender.
func (u *UDPConn) ReceiveFrom(size int) ([]byte, string, int, error) {
	b, addr, err := u.receive(size)
	if err != nil {
		return nil, "", 0, err
	}
	host, port, err := splitAddr(addr)
	return b, host, port, err
}

func (u *UDPConn) receive(size int) ([]byte, *net.UDPAddr, error) {
	pc, _, timeout, err := u.socket()
	if err != nil {
		return nil, nil, err
	}
	if size <= 0 {
		size = maxDatagramSize
	}
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := pc.SetReadDeadline(deadline); err != nil {
		return nil, nil, transportErr("receive", err)
	}
	buf := make([]byte, size)
	n, addr, err := pc.ReadFromUDP(buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, nil, ErrTimeout
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, nil, ErrClosed
		}
		return nil, nil, transportErr("receive", err)
	}
	return buf[:n], addr, nil
}

// LocalAddr returns the bound address.
func (u *UDPConn) LocalAddr() (string, int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return "", 0, ErrClosed
	}
	if u.pc == nil {
		return "", 0, ErrNotConnected
	}
	return splitAddr(u.pc.LocalAddr())
}

// PeerAddr returns the connected peer.
func (u *UDPConn) PeerAddr() (string, int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return "", 0, ErrClosed
	}
	if !u.connected {
		return "", 0, ErrNotConnected
	}
	return splitAddr(u.pc.RemoteAddr())
}

// Close closes the socket. It is safe to call more than once.
func (u *UDPConn) Close() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return nil
	}
	u.closed = true
	pc := u.pc
	u.mu.Unlock()
	u.lib.udps.Remove(key(u.id))
	if pc == nil {
		return nil
	}
	if err := pc.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return transportErr("close", err)
	}
	return nil
}
