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

package ringbuf

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCapacity is the capacity used by New when it is given a size below 2.
const DefaultCapacity = 4096

var (
	// ErrTimeout is returned when a read could not complete within its budget.
	ErrTimeout = errors.New("timeout")
)

// Buffer is a circular byte buffer of fixed capacity C that stores at most C-1
// bytes; one slot is sacrificed so readPos == writePos always means empty.
//
// WARNING: writers handed to the read methods receive slices of the internal
// array. They must copy what they keep before returning.
type Buffer struct {
	buf []byte

	// mu guards the cursors and the terminal state. Byte copies happen
	// outside it, on regions the other side cannot touch.
	mu            sync.Mutex
	readPos       int
	writePos      int
	eof           bool
	err           error
	readerBlocked bool

	readMu  sync.Mutex
	writeMu sync.Mutex

	// skipLF is set when a line ended on a CR that was the last buffered
	// byte; a LF arriving next belongs to that terminator. Guarded by readMu.
	skipLF bool

	totalWritten atomic.Int64

	// one waiter per channel: the reader waits on readable, the writer on
	// writable and readerWait.
	readable   chan struct{}
	writable   chan struct{}
	readerWait chan struct{}
	done       chan struct{}
}

// New returns an empty buffer of the given capacity.
func New(capacity int) *Buffer {
	if capacity < 2 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		buf:        make([]byte, capacity),
		readable:   make(chan struct{}, 1),
		writable:   make(chan struct{}, 1),
		readerWait: make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Cap returns the capacity C. At most C-1 bytes are buffered at any time.
func (b *Buffer) Cap() int {
	return len(b.buf)
}

func (b *Buffer) usedLocked() int {
	if b.writePos >= b.readPos {
		return b.writePos - b.readPos
	}
	return len(b.buf) - b.readPos + b.writePos
}

// AvailableToRead returns the number of buffered bytes.
func (b *Buffer) AvailableToRead() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.usedLocked()
}

// AvailableToWrite returns the free space in bytes.
func (b *Buffer) AvailableToWrite() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf) - 1 - b.usedLocked()
}

// CanRead reports whether a read would return without blocking.
func (b *Buffer) CanRead() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.eof || b.usedLocked() > 0
}

// CanWrite reports whether a write would return without blocking.
func (b *Buffer) CanWrite() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.eof || b.usedLocked() < len(b.buf)-1
}

// IsEOF reports whether EOF or CloseWithError has been called.
func (b *Buffer) IsEOF() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.eof
}

// Err returns the error recorded by CloseWithError, if any.
func (b *Buffer) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// TotalWritten returns the number of bytes ever accepted by Write.
func (b *Buffer) TotalWritten() int64 {
	return b.totalWritten.Load()
}

// EOF marks the end of the stream. Buffered bytes stay readable; once they are
// drained readers see io.EOF. Writers fail with io.ErrClosedPipe.
func (b *Buffer) EOF() {
	b.terminate(nil)
}

// CloseWithError ends the stream with err. Buffered bytes stay readable,
// after them readers and writers get err. The first error recorded wins, even
// when EOF was called before.
func (b *Buffer) CloseWithError(err error) {
	if err == nil {
		err = io.ErrClosedPipe
	}
	b.terminate(err)
}

func (b *Buffer) terminate(err error) {
	b.mu.Lock()
	if err != nil && b.err == nil {
		b.err = err
	}
	first := !b.eof
	b.eof = true
	b.mu.Unlock()
	if first {
		close(b.done)
	}
}

func (b *Buffer) readEndLocked() error {
	if b.err != nil {
		return b.err
	}
	return io.EOF
}

func (b *Buffer) writeEndLocked() error {
	if b.err != nil {
		return b.err
	}
	return io.ErrClosedPipe
}

// waitReadable returns the number of buffered bytes once there are any, or 0
// when timeout elapsed or ctx was cancelled. At the end of the stream it
// returns io.EOF or the recorded error.
func (b *Buffer) waitReadable(ctx context.Context, timeout time.Duration) (int, error) {
	var expired <-chan time.Time
	for {
		b.mu.Lock()
		if n := b.usedLocked(); n > 0 {
			b.readerBlocked = false
			b.mu.Unlock()
			return n, nil
		}
		if b.eof {
			err := b.readEndLocked()
			b.readerBlocked = false
			b.mu.Unlock()
			return 0, err
		}
		if timeout == 0 {
			b.readerBlocked = false
			b.mu.Unlock()
			return 0, nil
		}
		b.readerBlocked = true
		b.mu.Unlock()
		notify(b.readerWait)

		if timeout > 0 && expired == nil {
			t := time.NewTimer(timeout)
			defer t.Stop()
			expired = t.C
		}
		select {
		case <-b.readable:
		case <-b.done:
		case <-expired:
			// one last look before reporting the timeout
			timeout = 0
		case <-ctx.Done():
			b.setReaderBlocked(false)
			return 0, nil
		}
	}
}

func (b *Buffer) setReaderBlocked(v bool) {
	b.mu.Lock()
	b.readerBlocked = v
	b.mu.Unlock()
}

// waitWritable returns the free space once there is any, or 0 when timeout
// elapsed or ctx was cancelled.
func (b *Buffer) waitWritable(ctx context.Context, timeout time.Duration) (int, error) {
	var expired <-chan time.Time
	for {
		b.mu.Lock()
		if b.eof {
			err := b.writeEndLocked()
			b.mu.Unlock()
			return 0, err
		}
		if n := len(b.buf) - 1 - b.usedLocked(); n > 0 {
			b.mu.Unlock()
			return n, nil
		}
		b.mu.Unlock()
		if timeout == 0 {
			return 0, nil
		}

		if timeout > 0 && expired == nil {
			t := time.NewTimer(timeout)
			defer t.Stop()
			expired = t.C
		}
		select {
		case <-b.writable:
		case <-b.done:
		case <-expired:
			timeout = 0
		case <-ctx.Done():
			return 0, nil
		}
	}
}

// Write copies p into the buffer, waiting for space as needed. It returns
// early with a short count and a nil error when the budget runs out. Once the
// stream has ended it returns io.ErrClosedPipe or the recorded error.
func (b *Buffer) Write(ctx context.Context, p []byte, single, total time.Duration) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	defer func() { b.totalWritten.Add(int64(n)) }()

	bg := newBudget(single, total)
	for n < len(p) {
		free, err := b.waitWritable(ctx, bg.next())
		if err != nil {
			return n, err
		}
		if free == 0 {
			return n, nil
		}
		n += b.put(p[n:], free)
		if n < len(p) && bg.exhausted() {
			return n, nil
		}
	}
	return n, nil
}

func (b *Buffer) put(src []byte, free int) int {
	n := min(len(src), free)
	b.mu.Lock()
	wp := b.writePos
	b.mu.Unlock()

	first := min(n, len(b.buf)-wp)
	copy(b.buf[wp:wp+first], src[:first])
	copy(b.buf[:n-first], src[first:n])

	b.mu.Lock()
	b.writePos = (wp + n) % len(b.buf)
	b.mu.Unlock()
	notify(b.readable)
	return n
}

// segments returns the next n buffered bytes as at most two slices.
func (b *Buffer) segments(n int) ([]byte, []byte) {
	b.mu.Lock()
	rp := b.readPos
	b.mu.Unlock()
	first := min(n, len(b.buf)-rp)
	return b.buf[rp : rp+first], b.buf[:n-first]
}

func (b *Buffer) at(off int) byte {
	b.mu.Lock()
	rp := b.readPos
	b.mu.Unlock()
	return b.buf[(rp+off)%len(b.buf)]
}

func (b *Buffer) advance(n int) {
	if n == 0 {
		return
	}
	b.mu.Lock()
	b.readPos = (b.readPos + n) % len(b.buf)
	b.mu.Unlock()
	notify(b.writable)
}

// drain hands the next n bytes to w and consumes what w accepted.
func (b *Buffer) drain(w io.Writer, n int) (int, error) {
	s1, s2 := b.segments(n)
	done := 0
	for _, seg := range [2][]byte{s1, s2} {
		if len(seg) == 0 {
			continue
		}
		m, err := w.Write(seg)
		done += m
		if err != nil {
			b.advance(done)
			return done, err
		}
	}
	b.advance(done)
	return done, nil
}

// dropPendingLF consumes a LF that completes a CRLF split across arrivals.
func (b *Buffer) dropPendingLF(avail int) int {
	if !b.skipLF || avail == 0 {
		return avail
	}
	b.skipLF = false
	if b.at(0) == '\n' {
		b.advance(1)
		return avail - 1
	}
	return avail
}

// ReadBytes copies exactly n bytes into w. It returns io.EOF if the stream
// ends first and ErrTimeout if the budget runs out; in both cases the bytes
// read so far have already been written to w.
func (b *Buffer) ReadBytes(ctx context.Context, w io.Writer, n int, single, total time.Duration) error {
	if n <= 0 {
		return nil
	}
	b.readMu.Lock()
	defer b.readMu.Unlock()

	bg := newBudget(single, total)
	for n > 0 {
		avail, err := b.waitReadable(ctx, bg.next())
		if err != nil {
			return err
		}
		if avail == 0 {
			return ErrTimeout
		}
		if avail = b.dropPendingLF(avail); avail == 0 {
			continue
		}
		m, err := b.drain(w, min(avail, n))
		n -= m
		if err != nil {
			return err
		}
		if n > 0 && bg.exhausted() {
			return ErrTimeout
		}
	}
	return nil
}

// ReadLine copies one line into w without its terminator. CR, LF and CRLF
// each end a line. At the end of the stream the partial line is written to w
// and io.EOF returned.
func (b *Buffer) ReadLine(ctx context.Context, w io.Writer, single, total time.Duration) error {
	b.readMu.Lock()
	defer b.readMu.Unlock()

	bg := newBudget(single, total)
	for {
		avail, err := b.waitReadable(ctx, bg.next())
		if err != nil {
			return err
		}
		if avail == 0 {
			return ErrTimeout
		}
		if avail = b.dropPendingLF(avail); avail == 0 {
			continue
		}

		line, term := b.scanLine(avail)
		if _, err := b.drain(w, line); err != nil {
			return err
		}
		if term > 0 {
			b.advance(term)
			return nil
		}
		if bg.exhausted() {
			return ErrTimeout
		}
	}
}

// scanLine looks for a terminator in the first avail buffered bytes. It
// returns the line length and the terminator length, 0 if none was found.
func (b *Buffer) scanLine(avail int) (line, term int) {
	s1, s2 := b.segments(avail)
	for i := 0; i < avail; i++ {
		var c byte
		if i < len(s1) {
			c = s1[i]
		} else {
			c = s2[i-len(s1)]
		}
		switch c {
		case '\n':
			return i, 1
		case '\r':
			if i+1 == avail {
				b.skipLF = true
				return i, 1
			}
			var next byte
			if i+1 < len(s1) {
				next = s1[i+1]
			} else {
				next = s2[i+1-len(s1)]
			}
			if next == '\n' {
				return i, 2
			}
			return i, 1
		}
	}
	return avail, 0
}

// ReadAll copies everything up to the end of the stream into w. A clean end
// returns nil; a recorded error is returned as is.
func (b *Buffer) ReadAll(ctx context.Context, w io.Writer, single, total time.Duration) error {
	b.readMu.Lock()
	defer b.readMu.Unlock()

	bg := newBudget(single, total)
	for {
		avail, err := b.waitReadable(ctx, bg.next())
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if avail == 0 {
			return ErrTimeout
		}
		if avail = b.dropPendingLF(avail); avail == 0 {
			continue
		}
		if _, err := b.drain(w, avail); err != nil {
			return err
		}
		if bg.exhausted() {
			return ErrTimeout
		}
	}
}

// ReadSome waits up to timeout for data and hands everything buffered to w in
// one go. It returns io.EOF at the end of the stream.
func (b *Buffer) ReadSome(ctx context.Context, w io.Writer, timeout time.Duration) (int, error) {
	b.readMu.Lock()
	defer b.readMu.Unlock()

	for {
		avail, err := b.waitReadable(ctx, timeout)
		if err != nil {
			return 0, err
		}
		if avail == 0 {
			return 0, ErrTimeout
		}
		if avail = b.dropPendingLF(avail); avail == 0 {
			continue
		}
		return b.drain(w, avail)
	}
}

// WaitDrained blocks the writer side until the buffer is empty and a reader
// is blocked waiting for more, sharing one budget between both waits. It
// returns false if that did not happen in time or the stream ended first.
func (b *Buffer) WaitDrained(ctx context.Context, single, total time.Duration) bool {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if total == 0 {
		single = 0
	}
	if single < 0 {
		single = total
	}
	start := time.Now()
	if !b.waitEmpty(ctx, single) {
		return false
	}
	next := single
	if total > 0 {
		left := total - time.Since(start)
		if left < 0 {
			left = 0
		}
		next = min(single, left)
	}
	return b.waitReaderBlocked(ctx, next)
}

func (b *Buffer) waitEmpty(ctx context.Context, timeout time.Duration) bool {
	var expired <-chan time.Time
	for {
		b.mu.Lock()
		empty, eof := b.usedLocked() == 0, b.eof
		b.mu.Unlock()
		if empty {
			return true
		}
		if eof || timeout == 0 {
			return false
		}
		if timeout > 0 && expired == nil {
			t := time.NewTimer(timeout)
			defer t.Stop()
			expired = t.C
		}
		select {
		case <-b.writable:
		case <-b.done:
		case <-expired:
			timeout = 0
		case <-ctx.Done():
			return false
		}
	}
}

func (b *Buffer) waitReaderBlocked(ctx context.Context, timeout time.Duration) bool {
	var expired <-chan time.Time
	for {
		b.mu.Lock()
		blocked, eof := b.readerBlocked, b.eof
		b.mu.Unlock()
		if blocked {
			return true
		}
		if eof || timeout == 0 {
			return false
		}
		if timeout > 0 && expired == nil {
			t := time.NewTimer(timeout)
			defer t.Stop()
			expired = t.C
		}
		select {
		case <-b.readerWait:
		case <-b.done:
		case <-expired:
			timeout = 0
		case <-ctx.Done():
			return false
		}
	}
}
