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
	"fmt"
	"net"
	"sync"
	"time"

	queuepkg "github.com/Workiva/go-datastructures/queue"
)

// acceptResult is one item of the accept handoff: a socket or the error
// the accept loop ran into.
type acceptResult struct {
	conn *net.TCPConn
	err  error
}

// handoff passes accepted sockets from the accept loop to callers of Accept.
// It holds at most one item; put blocks until the previous one was taken.
type handoff struct {
	q      *queuepkg.Queue
	slot   chan struct{}
	ready  chan struct{}
	closed chan struct{}

	takeMu    sync.Mutex
	closeOnce sync.Once
}

func newHandoff() *handoff {
	return &handoff{
		q:      queuepkg.New(1),
		slot:   make(chan struct{}, 1),
		ready:  make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// put waits for the slot to be free and stores item. It returns false once
// the handoff is closed; the caller keeps ownership of item then.
func (h *handoff) put(item acceptResult) bool {
	select {
	case h.slot <- struct{}{}:
	case <-h.closed:
		return false
	}
	if err := h.q.Put(item); err != nil {
		<-h.slot
		return false
	}
	notify(h.ready)
	return true
}

// take returns the pending item without blocking.
func (h *handoff) take() (acceptResult, bool, error) {
	h.takeMu.Lock()
	defer h.takeMu.Unlock()
	if h.q.Disposed() {
		return acceptResult{}, false, ErrClosed
	}
	if h.q.Len() == 0 {
		return acceptResult{}, false, nil
	}
	items, err := h.q.Get(1)
	if err != nil {
		return acceptResult{}, false, ErrClosed
	}
	<-h.slot
	item, ok := items[0].(acceptResult)
	if !ok {
		return acceptResult{}, false, fmt.Errorf("invalid handoff item type %T", items[0])
	}
	return item, true, nil
}

// wait takes the pending item, waiting up to timeout for one to arrive.
func (h *handoff) wait(ctx context.Context, timeout time.Duration) (acceptResult, error) {
	var expired <-chan time.Time
	for {
		item, ok, err := h.take()
		if err != nil {
			return acceptResult{}, err
		}
		if ok {
			return item, nil
		}
		if timeout == 0 {
			return acceptResult{}, ErrTimeout
		}
		if timeout > 0 && expired == nil {
			t := time.NewTimer(timeout)
			defer t.Stop()
			expired = t.C
		}
		select {
		case <-h.ready:
		case <-h.closed:
		case <-expired:
			timeout = 0
		case <-ctx.Done():
			return acceptResult{}, ErrTimeout
		}
	}
}

func (h *handoff) pending() bool {
	return h.q.Len() > 0
}

// close wakes every waiter and returns the items nobody took.
func (h *handoff) close() []acceptResult {
	var left []acceptResult
	h.closeOnce.Do(func() {
		close(h.closed)
		h.takeMu.Lock()
		items := h.q.Dispose()
		h.takeMu.Unlock()
		for _, it := range items {
			if r, ok := it.(acceptResult); ok {
				left = append(left, r)
			}
		}
	})
	return left
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
