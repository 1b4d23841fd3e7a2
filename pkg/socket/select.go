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
	"time"
)

// selector is the registration token a Select call places on every conn it
// watches. Pumps of a watched conn signal it on every readiness change.
type selector struct {
	wake chan struct{}
}

func (s *selector) signal() {
	notify(s.wake)
}

// Select waits until at least one conn of reads can be read without
// blocking (or accepted from, for servers) or one conn of writes can be
// written, or until timeout elapses. A negative timeout waits forever and
// zero polls. Closed and uninitialized conns in reads and non-client conns
// in writes are ignored.
//
// An empty result is reported as ErrTimeout. A conn watched by another
// Select call in progress yields ErrSelectInProgress. Cancelling ctx ends
// the wait like a timeout.
func Select(ctx context.Context, reads, writes []*Conn, timeout time.Duration) (readable, writable []*Conn, err error) {
	reads = watchable(reads, (*Conn).readWatchable)
	writes = watchable(writes, (*Conn).writeWatchable)
	if len(reads) == 0 && len(writes) == 0 {
		if timeout > 0 {
			sleepCtx(ctx, timeout)
		}
		return nil, nil, ErrTimeout
	}
	for _, c := range reads {
		c.markTimedRead()
	}
	for _, c := range writes {
		c.markTimedRead()
	}

	if readable, writable = collectReady(reads, writes); len(readable)+len(writable) > 0 {
		return readable, writable, nil
	}
	if timeout == 0 {
		return nil, nil, ErrTimeout
	}

	sel := &selector{wake: make(chan struct{}, 1)}
	var watched []*Conn
	release := func() {
		for _, c := range watched {
			c.unwatch(sel)
		}
	}
	for _, c := range union(reads, writes) {
		if !c.watch(sel) {
			release()
			return nil, nil, ErrSelectInProgress
		}
		watched = append(watched, c)
	}
	defer release()

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	for {
		// readiness may have changed before the token was in place
		if readable, writable = collectReady(reads, writes); len(readable)+len(writable) > 0 {
			return readable, writable, nil
		}
		select {
		case <-sel.wake:
			watched[0].env.metrics.selectWakeups.Inc()
		case <-expired:
			return nil, nil, ErrTimeout
		case <-ctx.Done():
			return nil, nil, ErrTimeout
		}
	}
}

func watchable(conns []*Conn, ok func(*Conn) bool) []*Conn {
	seen := make(map[*Conn]struct{}, len(conns))
	out := make([]*Conn, 0, len(conns))
	for _, c := range conns {
		if c == nil || !ok(c) {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func union(a, b []*Conn) []*Conn {
	out := append([]*Conn(nil), a...)
	for _, c := range b {
		dup := false
		for _, x := range a {
			if x == c {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out
}

func collectReady(reads, writes []*Conn) (readable, writable []*Conn) {
	for _, c := range reads {
		if c.ReadReady() {
			readable = append(readable, c)
		}
	}
	for _, c := range writes {
		if c.WriteReady() {
			writable = append(writable, c)
		}
	}
	return readable, writable
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
