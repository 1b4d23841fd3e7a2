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
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srediag/tcpsock/api"
	"github.com/srediag/tcpsock/pkg/ringbuf"
)

// client owns one connected socket and the two pumps moving bytes between it
// and the ring buffers.
type client struct {
	conn     *net.TCPConn
	inbound  *ringbuf.Buffer
	outbound *ringbuf.Buffer
	env      *env
	stats    *Stats
	notify   func()

	readerDone chan struct{}
	writerDone chan struct{}

	// hadTimedRead is set by the first read with a non-zero single timeout.
	// Before that every zero-timeout read reports ErrTimeout.
	hadTimedRead atomic.Bool
	errReported  atomic.Bool
	outputShut   atomic.Bool
	inputShut    atomic.Bool
	closeOnce    sync.Once
}

func newClient(conn *net.TCPConn, e *env, stats *Stats, notify func()) (*client, error) {
	c := &client{
		conn:       conn,
		inbound:    ringbuf.New(e.config.BufferCapacity),
		outbound:   ringbuf.New(e.config.BufferCapacity),
		env:        e,
		stats:      stats,
		notify:     notify,
		readerDone: make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	if err := e.exec.Submit(c.readLoop); err != nil {
		_ = conn.Close()
		return nil, transportErr("start reader", err)
	}
	if err := e.exec.Submit(c.writeLoop); err != nil {
		// the reader exits once the socket is closed
		c.inbound.CloseWithError(ErrClosed)
		_ = conn.Close()
		return nil, transportErr("start writer", err)
	}
	return c, nil
}

func (c *client) readLoop() {
	defer close(c.readerDone)
	scratch := make([]byte, c.env.config.ScratchSize)
	for {
		n, err := c.conn.Read(scratch)
		if n > 0 {
			if _, werr := c.inbound.Write(context.Background(), scratch[:n], -1, -1); werr != nil {
				c.env.log.debugf("reader %s stopped: %v", c.conn.RemoteAddr(), werr)
				return
			}
			c.notify()
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.inbound.EOF()
			} else {
				c.inbound.CloseWithError(transportErr("read", err))
			}
			c.env.log.tracef("reader %s finished: %v", c.conn.RemoteAddr(), err)
			c.notify()
			return
		}
	}
}

func (c *client) writeLoop() {
	defer close(c.writerDone)
	for {
		_, err := c.outbound.ReadSome(context.Background(), c.conn, -1)
		c.notify()
		if err == nil {
			continue
		}
		if !errors.Is(err, io.EOF) {
			c.outbound.CloseWithError(transportErr("write", err))
			c.env.log.debugf("writer %s failed: %v", c.conn.RemoteAddr(), err)
		}
		return
	}
}

// markTimedRead satisfies the zero-timeout read precondition.
func (c *client) markTimedRead() {
	c.hadTimedRead.Store(true)
}

func (c *client) receive(ctx context.Context, p api.Pattern, single, total time.Duration, w io.Writer) error {
	// checked on the caller's single timeout; the ring applies the
	// total == 0 clamp itself
	if single != 0 {
		c.markTimedRead()
	} else if !c.hadTimedRead.Load() {
		return ErrTimeout
	}

	cw := &countingWriter{w: w}
	var err error
	switch p.Kind {
	case api.PatternLine:
		err = c.inbound.ReadLine(ctx, cw, single, total)
	case api.PatternAll:
		err = c.inbound.ReadAll(ctx, cw, single, total)
	case api.PatternBytes:
		err = c.inbound.ReadBytes(ctx, cw, p.N, single, total)
	default:
		return ErrUnsupportedPattern
	}
	c.stats.addReceived(cw.n)
	c.env.metrics.bytesReceived.Add(float64(cw.n))
	return err
}

func (c *client) send(ctx context.Context, p []byte, single, total time.Duration) (int, error) {
	n, err := c.outbound.Write(ctx, p, single, total)
	c.stats.addSent(n)
	c.env.metrics.bytesSent.Add(float64(n))
	switch {
	case errors.Is(err, io.ErrClosedPipe), errors.Is(err, ErrClosed):
		return n, ErrClosed
	case err != nil:
		c.errReported.Store(true)
		return n, err
	case n < len(p):
		return n, ErrTimeout
	}
	return n, nil
}

// flush waits until the writer pump has drained the outbound buffer.
func (c *client) flush(ctx context.Context, single, total time.Duration) error {
	if c.outbound.WaitDrained(ctx, single, total) {
		return nil
	}
	if err := c.outbound.Err(); err != nil {
		if errors.Is(err, ErrClosed) {
			return ErrClosed
		}
		c.errReported.Store(true)
		return err
	}
	if c.outbound.IsEOF() {
		return ErrClosed
	}
	return ErrTimeout
}

func (c *client) shutdownOutput() error {
	if !c.outputShut.CompareAndSwap(false, true) {
		return nil
	}
	c.outbound.EOF()
	if !c.waitWriter() {
		c.env.log.warnf("writer %s did not drain within %s", c.conn.RemoteAddr(), c.env.config.DrainTimeout)
		return ErrTimeout
	}
	if c.outbound.Err() != nil {
		return nil
	}
	if err := c.conn.CloseWrite(); err != nil {
		return transportErr("shutdown send", err)
	}
	return nil
}

func (c *client) shutdownInput() error {
	if !c.inputShut.CompareAndSwap(false, true) {
		return nil
	}
	if err := c.conn.CloseRead(); err != nil {
		return transportErr("shutdown receive", err)
	}
	return nil
}

func (c *client) waitWriter() bool {
	d := c.env.config.DrainTimeout
	if d < 0 {
		<-c.writerDone
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.writerDone:
		return true
	case <-t.C:
		return false
	}
}

// close drains the outbound buffer, closes the socket and returns a write
// error no caller has seen yet, once.
func (c *client) close() error {
	var cerr error
	c.closeOnce.Do(func() {
		_ = c.shutdownOutput()
		c.outbound.CloseWithError(ErrClosed)
		c.inbound.CloseWithError(ErrClosed)
		if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			cerr = transportErr("close", err)
		}
		c.notify()
	})
	if err := c.outbound.Err(); err != nil && !errors.Is(err, ErrClosed) {
		if c.errReported.CompareAndSwap(false, true) {
			return err
		}
		return nil
	}
	return cerr
}

func (c *client) readReady() bool {
	return c.inbound.CanRead()
}

func (c *client) writeReady() bool {
	return c.outbound.CanWrite()
}

type countingWriter struct {
	w io.Writer
	n int
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += n
	return n, err
}
