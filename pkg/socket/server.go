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
	"context"
	"errors"
	"net"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const initialAcceptBackoff = 5 * time.Millisecond

// server owns a listening socket and its accept loop.
type server struct {
	ln     *net.TCPListener
	queue  *handoff
	env    *env
	notify func()

	closed   atomic.Bool
	loopDone chan struct{}
}

func newServer(ln *net.TCPListener, e *env, notify func()) (*server, error) {
	s := &server{
		ln:       ln,
		queue:    newHandoff(),
		env:      e,
		notify:   notify,
		loopDone: make(chan struct{}),
	}
	if err := e.exec.Submit(s.acceptLoop); err != nil {
		_ = ln.Close()
		return nil, transportErr("start accept loop", err)
	}
	return s, nil
}

func (s *server) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = min(initialAcceptBackoff, s.env.config.AcceptBackoffMax)
	bo.MaxInterval = s.env.config.AcceptBackoffMax
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

func (s *server) acceptLoop() {
	defer close(s.loopDone)
	bo := s.newBackOff()
	for {
		conn, err := s.ln.AcceptTCP()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				s.env.log.tracef("accept loop %s stopped", s.ln.Addr())
				return
			}
			s.env.log.warnf("accept on %s failed: %v", s.ln.Addr(), err)
			if !s.queue.put(acceptResult{err: transportErr("accept", err)}) {
				return
			}
			s.notify()

			t := time.NewTimer(bo.NextBackOff())
			select {
			case <-t.C:
			case <-s.queue.closed:
				t.Stop()
				return
			}
			continue
		}
		bo.Reset()
		if !s.queue.put(acceptResult{conn: conn}) {
			_ = conn.Close()
			return
		}
		s.notify()
	}
}

// accept returns the next accepted socket, waiting up to timeout.
func (s *server) accept(ctx context.Context, timeout time.Duration) (*net.TCPConn, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	item, err := s.queue.wait(ctx, timeout)
	if err != nil {
		return nil, err
	}
	if item.err != nil {
		return nil, item.err
	}
	return item.conn, nil
}

func (s *server) acceptReady() bool {
	return s.closed.Load() || s.queue.pending()
}

func (s *server) close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := s.ln.Close()
	for _, left := range s.queue.close() {
		if left.conn != nil {
			_ = left.conn.Close()
		}
	}
	s.notify()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return transportErr("close", err)
	}
	return nil
}
