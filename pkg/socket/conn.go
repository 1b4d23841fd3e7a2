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
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/bytebufferpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/tcpsock/api"
)

// Role is the state of a Conn. A conn leaves RoleUninitialized at most once
// and may move to RoleClosed from any state.
type Role int32

const (
	RoleUninitialized Role = iota
	RoleClient
	RoleServer
	RoleClosed
)

func (r Role) String() string {
	switch r {
	case RoleUninitialized:
		return "uninitialized"
	case RoleClient:
		return "client"
	case RoleServer:
		return "server"
	case RoleClosed:
		return "closed"
	default:
		return "Role(" + strconv.Itoa(int(r)) + ")"
	}
}

// env is what a Conn needs from the library that created it.
type env struct {
	exec    api.Executor
	config  *Config
	log     *logger
	metrics *metrics

	newConn func(settings Settings, parent *Stats) (*Conn, error)
	release func(*Conn)
}

// Conn is a TCP socket with blocking, timeout-bounded operations. It starts
// uninitialized and becomes a client through Connect or Accept, or a server
// through Bind. Every Conn must be closed by its owner.
type Conn struct {
	id  uint64
	env *env

	mu       sync.Mutex
	role     Role
	settings Settings
	client   *client
	server   *server

	stats      *Stats
	watcher    atomic.Pointer[selector]
	lastActive atomic.Int64
}

var _ api.Socket = (*Conn)(nil)

func newConn(id uint64, e *env, settings Settings, parent *Stats) *Conn {
	c := &Conn{
		id:       id,
		env:      e,
		settings: settings,
		stats:    newStats(parent),
	}
	c.touch()
	return c
}

// ID returns the library-unique id of the conn.
func (c *Conn) ID() uint64 {
	return c.id
}

// Role returns the current state.
func (c *Conn) Role() Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

// Settings returns a copy of the current settings.
func (c *Conn) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.Clone()
}

func (c *Conn) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

func (c *Conn) idleFor() time.Duration {
	return time.Since(time.Unix(0, c.lastActive.Load()))
}

func (c *Conn) notifyWatcher() {
	if sel := c.watcher.Load(); sel != nil {
		sel.signal()
	}
}

func (c *Conn) watch(sel *selector) bool {
	return c.watcher.CompareAndSwap(nil, sel)
}

func (c *Conn) unwatch(sel *selector) {
	c.watcher.CompareAndSwap(sel, nil)
}

func (c *Conn) clientRole() (*client, Settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.role {
	case RoleClient:
		return c.client, c.settings, nil
	case RoleClosed:
		return nil, Settings{}, ErrClosed
	default:
		return nil, Settings{}, ErrNotClient
	}
}

func (c *Conn) serverRole() (*server, Settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.role {
	case RoleServer:
		return c.server, c.settings, nil
	case RoleClosed:
		return nil, Settings{}, ErrClosed
	default:
		return nil, Settings{}, ErrNotServer
	}
}

func (c *Conn) uninitialized() (Settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.role {
	case RoleUninitialized:
		return c.settings.Clone(), nil
	case RoleClosed:
		return Settings{}, ErrClosed
	default:
		return Settings{}, ErrAlreadyInitialized
	}
}

func (c *Conn) becomeClient(tc *net.TCPConn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.role {
	case RoleUninitialized:
	case RoleClosed:
		_ = tc.Close()
		return ErrClosed
	default:
		_ = tc.Close()
		return ErrAlreadyInitialized
	}
	cl, err := newClient(tc, c.env, c.stats, c.notifyWatcher)
	if err != nil {
		return err
	}
	c.client = cl
	c.role = RoleClient
	return nil
}

func (c *Conn) becomeServer(ln *net.TCPListener) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.role {
	case RoleUninitialized:
	case RoleClosed:
		_ = ln.Close()
		return ErrClosed
	default:
		_ = ln.Close()
		return ErrAlreadyInitialized
	}
	srv, err := newServer(ln, c.env, c.notifyWatcher)
	if err != nil {
		return err
	}
	c.server = srv
	c.role = RoleServer
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Connect turns an uninitialized conn into a client connected to host:port.
// It waits at most the smaller of the two timeouts.
func (c *Conn) Connect(ctx context.Context, host string, port int) (err error) {
	settings, err := c.uninitialized()
	if err != nil {
		return err
	}
	c.touch()
	ctx, span := c.env.metrics.tracer.Start(ctx, "tcpsock.Connect",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("net.peer.name", host),
			attribute.Int("net.peer.port", port),
		))
	defer func() { endSpan(span, err) }()

	if timeout := settings.MinTimeout(); timeout >= 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, max(timeout, time.Millisecond))
		defer cancel()
	}

	var d net.Dialer
	start := time.Now()
	nc, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	c.env.metrics.observeConnect(ctx, start)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("connect %s:%d: %w", host, port, ErrTimeout)
		}
		return transportErr("connect", err)
	}
	tc := nc.(*net.TCPConn)
	if err := settings.applyConn(tc); err != nil {
		_ = tc.Close()
		return err
	}
	if err := c.becomeClient(tc); err != nil {
		return err
	}
	c.env.log.debugf("conn %d connected %s -> %s", c.id, tc.LocalAddr(), tc.RemoteAddr())
	return nil
}

// Bind turns an uninitialized conn into a server listening on host:port.
// Host "*" or "" listens on every IPv4 interface; port 0 picks a free port.
func (c *Conn) Bind(ctx context.Context, host string, port int) (err error) {
	settings, err := c.uninitialized()
	if err != nil {
		return err
	}
	c.touch()
	if host == "*" || host == "" {
		host = "0.0.0.0"
	}
	ctx, span := c.env.metrics.tracer.Start(ctx, "tcpsock.Bind",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("net.host.name", host),
			attribute.Int("net.host.port", port),
		))
	defer func() { endSpan(span, err) }()

	lc := settings.listenConfig()
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return transportErr("bind", err)
	}
	if err := c.becomeServer(ln.(*net.TCPListener)); err != nil {
		return err
	}
	c.env.log.debugf("conn %d listening on %s", c.id, ln.Addr())
	return nil
}

// Listen exists for API parity: Bind already listens with the kernel's
// default backlog.
func (c *Conn) Listen() error {
	_, _, err := c.serverRole()
	return err
}

// Accept returns the next incoming connection as a new client conn that
// copies this server's settings. It waits at most the smaller of the two
// timeouts.
func (c *Conn) Accept(ctx context.Context) (_ *Conn, err error) {
	srv, settings, err := c.serverRole()
	if err != nil {
		return nil, err
	}
	c.touch()
	ctx, span := c.env.metrics.tracer.Start(ctx, "tcpsock.Accept", trace.WithSpanKind(trace.SpanKindServer))
	defer func() {
		if errors.Is(err, ErrTimeout) {
			span.End()
			return
		}
		endSpan(span, err)
	}()

	tc, err := srv.accept(ctx, settings.MinTimeout())
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("net.peer.addr", tc.RemoteAddr().String()))
	if err := settings.applyConn(tc); err != nil {
		_ = tc.Close()
		return nil, err
	}
	child, err := c.env.newConn(settings.Clone(), c.stats)
	if err != nil {
		_ = tc.Close()
		return nil, err
	}
	if err := child.becomeClient(tc); err != nil {
		_ = child.Close()
		return nil, err
	}
	c.env.metrics.accepted.Inc()
	c.env.log.debugf("conn %d accepted %s as conn %d", c.id, tc.RemoteAddr(), child.id)
	return child, nil
}

// Receive reads according to p using the conn's timeouts and returns prefix
// followed by what was read. On error the bytes read so far are returned too,
// so a caller can resume a partial line with them as the next prefix.
func (c *Conn) Receive(ctx context.Context, p api.Pattern, prefix []byte) ([]byte, error) {
	cl, settings, err := c.clientRole()
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	c.touch()

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	_, _ = buf.Write(prefix)
	err = cl.receive(ctx, p, settings.SingleTimeout, settings.TotalTimeout, buf)
	out := make([]byte, buf.Len())
	copy(out, buf.B)
	return out, err
}

// Send writes data[offset:offset+length] using the conn's timeouts. Offset
// and length are clamped to data. A short count comes with ErrTimeout.
func (c *Conn) Send(ctx context.Context, data []byte, offset, length int) (int, error) {
	cl, settings, err := c.clientRole()
	if err != nil {
		return 0, err
	}
	c.touch()
	offset = min(max(offset, 0), len(data))
	if length < 0 || offset+length > len(data) {
		length = len(data) - offset
	}
	return cl.send(ctx, data[offset:offset+length], settings.SingleTimeout, settings.TotalTimeout)
}

// Flush waits, within the conn's timeouts, until every byte accepted by Send
// has been handed to the operating system.
func (c *Conn) Flush(ctx context.Context) error {
	cl, settings, err := c.clientRole()
	if err != nil {
		return err
	}
	c.touch()
	return cl.flush(ctx, settings.SingleTimeout, settings.TotalTimeout)
}

// Shutdown half-closes a client: "send" drains pending output and closes the
// write side, "receive" closes the read side, "both" does both.
func (c *Conn) Shutdown(direction string) error {
	cl, _, err := c.clientRole()
	if err != nil {
		return err
	}
	c.touch()
	switch direction {
	case "both":
		return errors.Join(cl.shutdownOutput(), cl.shutdownInput())
	case "send":
		return cl.shutdownOutput()
	case "receive":
		return cl.shutdownInput()
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDirection, direction)
	}
}

// Close releases the conn. Pending output is drained first, bounded by the
// library's DrainTimeout. A write error no caller has seen yet is returned by
// the first Close; later calls return nil.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.role == RoleClosed {
		c.mu.Unlock()
		return nil
	}
	prev, cl, srv := c.role, c.client, c.server
	c.role = RoleClosed
	c.mu.Unlock()

	var err error
	switch prev {
	case RoleClient:
		err = cl.close()
	case RoleServer:
		err = srv.close()
	}
	c.notifyWatcher()
	c.env.release(c)
	c.env.log.debugf("conn %d closed (was %s)", c.id, prev)
	return err
}

// SetOption sets one of the socket options "keepalive", "reuseaddr",
// "tcp-nodelay" (bool values) or "linger" (a Linger). The option is applied
// to the live socket, if any, and kept only if that succeeds.
func (c *Conn) SetOption(name string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.role == RoleClosed {
		return ErrClosed
	}
	next, err := c.settings.withOption(name, value)
	if err != nil {
		return err
	}
	switch c.role {
	case RoleClient:
		err = next.applyConn(c.client.conn)
	case RoleServer:
		err = next.applyListener(c.server.ln)
	}
	if err != nil {
		return err
	}
	c.settings = next
	return nil
}

// SetTimeout sets the single ("b" or "single") or total ("t" or "total")
// timeout in seconds. A negative value waits forever, zero never waits.
func (c *Conn) SetTimeout(seconds int, kind string) error {
	d := time.Duration(-1)
	if seconds >= 0 {
		d = time.Duration(seconds) * time.Second
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.role == RoleClosed {
		return ErrClosed
	}
	switch kind {
	case "b", "single":
		c.settings.SingleTimeout = d
	case "t", "total":
		c.settings.TotalTimeout = d
	default:
		return fmt.Errorf("%w: %q", ErrInvalidTimeoutKind, kind)
	}
	return nil
}

// SetTimeouts sets both timeouts with sub-second precision.
func (c *Conn) SetTimeouts(single, total time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.role == RoleClosed {
		return ErrClosed
	}
	c.settings.SingleTimeout = max(single, -1)
	c.settings.TotalTimeout = max(total, -1)
	return nil
}

// PeerAddr returns the address of the remote end of a client.
func (c *Conn) PeerAddr() (string, int, error) {
	cl, _, err := c.clientRole()
	if errors.Is(err, ErrNotClient) {
		return "", 0, ErrNotConnected
	}
	if err != nil {
		return "", 0, err
	}
	return splitAddr(cl.conn.RemoteAddr())
}

// LocalAddr returns the local address of a client or server.
func (c *Conn) LocalAddr() (string, int, error) {
	c.mu.Lock()
	role, cl, srv := c.role, c.client, c.server
	c.mu.Unlock()
	switch role {
	case RoleClient:
		return splitAddr(cl.conn.LocalAddr())
	case RoleServer:
		return splitAddr(srv.ln.Addr())
	case RoleClosed:
		return "", 0, ErrClosed
	default:
		return "", 0, ErrNotConnected
	}
}

// Stats returns bytes received, bytes sent and the age in seconds. A server
// counts the traffic of every conn it accepted.
func (c *Conn) Stats() (received, sent, ageSeconds int64) {
	return c.stats.Snapshot()
}

// SetStats restores saved statistics; see Stats.Set.
func (c *Conn) SetStats(received, sent, ageSeconds int64) {
	c.stats.Set(received, sent, ageSeconds)
}

// ReadReady reports whether a receive or accept would return without
// waiting: data or end of stream is buffered, a connection is pending, or the
// conn is closed.
func (c *Conn) ReadReady() bool {
	c.mu.Lock()
	role, cl, srv := c.role, c.client, c.server
	c.mu.Unlock()
	switch role {
	case RoleClient:
		return cl.readReady()
	case RoleServer:
		return srv.acceptReady()
	case RoleClosed:
		return true
	default:
		return false
	}
}

// WriteReady reports whether a send would accept at least one byte without
// waiting.
func (c *Conn) WriteReady() bool {
	cl, _, err := c.clientRole()
	if err != nil {
		return false
	}
	return cl.writeReady()
}

func (c *Conn) readWatchable() bool {
	r := c.Role()
	return r == RoleClient || r == RoleServer
}

func (c *Conn) writeWatchable() bool {
	return c.Role() == RoleClient
}

func (c *Conn) markTimedRead() {
	if cl, _, err := c.clientRole(); err == nil {
		cl.markTimedRead()
	}
}
