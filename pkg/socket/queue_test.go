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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHandoffOperate(t *testing.T) {
	h := newHandoff()
	_, ok, err := h.take()
	assert.Equal(t, nil, err)
	assert.False(t, ok)
	assert.False(t, h.pending())

	boom := errors.New("accept failed")
	assert.True(t, h.put(acceptResult{err: boom}))
	assert.True(t, h.pending())

	item, ok, err := h.take()
	assert.Equal(t, nil, err)
	assert.True(t, ok)
	assert.Equal(t, boom, item.err)
	assert.False(t, h.pending())
}

func TestHandoffHoldsOneItem(t *testing.T) {
	h := newHandoff()
	assert.True(t, h.put(acceptResult{}))

	second := make(chan bool, 1)
	go func() {
		second <- h.put(acceptResult{err: errors.New("second")})
	}()
	select {
	case <-second:
		t.Fatal("put did not wait for the slot")
	case <-time.After(50 * time.Millisecond):
	}

	_, err := h.wait(context.Background(), time.Second)
	assert.Equal(t, nil, err)
	assert.True(t, <-second)

	item, err := h.wait(context.Background(), time.Second)
	assert.Equal(t, nil, err)
	assert.EqualError(t, item.err, "second")
}

func TestHandoffWaitTimeouts(t *testing.T) {
	h := newHandoff()
	_, err := h.wait(context.Background(), 0)
	assert.ErrorIs(t, err, ErrTimeout)

	start := time.Now()
	_, err = h.wait(context.Background(), 30*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.wait(ctx, -1)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestHandoffCloseReturnsLeftovers(t *testing.T) {
	h := newHandoff()
	assert.True(t, h.put(acceptResult{err: errors.New("left")}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// blocks on the full slot until close
		assert.False(t, h.put(acceptResult{}))
	}()
	time.Sleep(10 * time.Millisecond)

	left := h.close()
	wg.Wait()
	assert.Len(t, left, 1)
	assert.Nil(t, h.close())

	_, err := h.wait(context.Background(), -1)
	assert.ErrorIs(t, err, ErrClosed)
}

func BenchmarkHandoffPutTake(b *testing.B) {
	h := newHandoff()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = h.put(acceptResult{})
		_, _, _ = h.take()
	}
}
