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
	"sync/atomic"
	"time"
)

// Stats counts the bytes handed to and taken from callers, and the age of a
// connection. Counters of accepted connections also feed their server.
type Stats struct {
	received atomic.Int64
	sent     atomic.Int64
	created  atomic.Int64
	parent   *Stats
}

func newStats(parent *Stats) *Stats {
	s := &Stats{parent: parent}
	s.created.Store(time.Now().UnixNano())
	return s
}

func (s *Stats) addReceived(n int) {
	if n <= 0 {
		return
	}
	s.received.Add(int64(n))
	if s.parent != nil {
		s.parent.addReceived(n)
	}
}

func (s *Stats) addSent(n int) {
	if n <= 0 {
		return
	}
	s.sent.Add(int64(n))
	if s.parent != nil {
		s.parent.addSent(n)
	}
}

// Snapshot returns bytes received, bytes sent and the age in whole seconds.
func (s *Stats) Snapshot() (received, sent, ageSeconds int64) {
	age := time.Since(time.Unix(0, s.created.Load()))
	return s.received.Load(), s.sent.Load(), int64(age / time.Second)
}

// Set restores previously saved values. An age of zero or less resets the
// creation time to now.
func (s *Stats) Set(received, sent, ageSeconds int64) {
	s.received.Store(received)
	s.sent.Store(sent)
	created := time.Now()
	if ageSeconds > 0 {
		created = created.Add(-time.Duration(ageSeconds) * time.Second)
	}
	s.created.Store(created.UnixNano())
}
