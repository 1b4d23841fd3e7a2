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
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/srediag/tcpsock/api"
)

const poolReleaseTimeout = time.Second

// Library creates connections and owns what they share: the goroutine pool
// running the pumps, the registry of live connections, metrics and logging.
// Close releases every connection still registered.
type Library struct {
	config  *Config
	log     *logger
	pool    *ants.Pool
	metrics *metrics
	env     *env

	conns  cmap.ConcurrentMap[string, *Conn]
	udps   cmap.ConcurrentMap[string, *UDPConn]
	nextID atomic.Uint64
	closed atomic.Bool

	closeOnce  sync.Once
	reaperStop chan struct{}
	reaperDone chan struct{}
}

// New creates a Library. A nil config uses DefaultConfig.
func New(config *Config) (*Library, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := VerifyConfig(config); err != nil {
		return nil, err
	}
	log := newLogger("tcpsock", config.LogOutput)
	m, err := newMetrics(config)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	opts := []ants.Option{
		ants.WithLogger(log),
		ants.WithPanicHandler(func(p interface{}) {
			log.errorf("pump panicked: %v", p)
		}),
	}
	if config.PoolSize > 0 {
		opts = append(opts, ants.WithNonblocking(true))
	}
	pool, err := ants.NewPool(config.PoolSize, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	l := &Library{
		config:  config,
		log:     log,
		pool:    pool,
		metrics: m,
		conns:   cmap.New[*Conn](),
		udps:    cmap.New[*UDPConn](),
	}
	l.env = &env{
		exec:    api.ExecutorFunc(pool.Submit),
		config:  config,
		log:     log,
		metrics: m,
		newConn: l.newConn,
		release: l.release,
	}
	if config.ReapIdleAfter > 0 {
		l.reaperStop = make(chan struct{})
		l.reaperDone = make(chan struct{})
		go l.reap(config.ReapIdleAfter)
	}
	return l, nil
}

func (l *Library) newConn(settings Settings, parent *Stats) (*Conn, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	c := newConn(l.nextID.Add(1), l.env, settings, parent)
	l.conns.Set(key(c.id), c)
	l.metrics.open.Inc()
	// Close may have run between the check and the registration
	if l.closed.Load() {
		_ = c.Close()
		return nil, ErrClosed
	}
	return c, nil
}

func (l *Library) release(c *Conn) {
	if l.conns.RemoveCb(key(c.id), func(_ string, _ *Conn, exists bool) bool { return exists }) {
		l.metrics.open.Dec()
	}
}

func key(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// TCP returns a new uninitialized connection with default settings.
func (l *Library) TCP() (*Conn, error) {
	return l.newConn(DefaultSettings(), nil)
}

// UDP returns a new unbound UDP socket.
func (l *Library) UDP() (*UDPConn, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	u := &UDPConn{id: l.nextID.Add(1), timeout: -1, lib: l}
	l.udps.Set(key(u.id), u)
	return u, nil
}

// Select waits for readiness on the given connections; see Select.
func (l *Library) Select(ctx context.Context, reads, writes []*Conn, timeout time.Duration) ([]*Conn, []*Conn, error) {
	if l.closed.Load() {
		return nil, nil, ErrClosed
	}
	return Select(ctx, reads, writes, timeout)
}

// Executor returns the capability used to schedule the pumps.
func (l *Library) Executor() api.Executor {
	return l.env.exec
}

// Config returns the configuration the library was created with.
func (l *Library) Config() *Config {
	return l.config
}

// Gatherer returns the registry holding the library's collectors, or nil if
// the configured Registerer is not a Gatherer.
func (l *Library) Gatherer() prometheus.Gatherer {
	return l.metrics.gatherer
}

// Len returns the number of open TCP connections.
func (l *Library) Len() int {
	return l.conns.Count()
}

// Running returns the number of busy pool workers, two per client and one
// per server.
func (l *Library) Running() int {
	return l.pool.Running()
}

// Closed reports whether Close was called.
func (l *Library) Closed() bool {
	return l.closed.Load()
}

func (l *Library) liveConns() []*Conn {
	out := make([]*Conn, 0, l.conns.Count())
	for _, c := range l.conns.Items() {
		out = append(out, c)
	}
	return out
}

// Close closes every registered connection and releases the pool.
func (l *Library) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		if l.reaperStop != nil {
			close(l.reaperStop)
			<-l.reaperDone
		}
		for _, c := range l.liveConns() {
			if cerr := c.Close(); cerr != nil {
				l.log.warnf("close conn %d: %v", c.id, cerr)
			}
		}
		for _, u := range l.udps.Items() {
			_ = u.Close()
		}
		if rerr := l.pool.ReleaseTimeout(poolReleaseTimeout); rerr != nil {
			l.log.warnf("release pool: %v", rerr)
			err = rerr
		}
	})
	return err
}

// reap closes connections without caller activity for longer than idle.
// Owners must still close their connections; this only bounds leaks.
func (l *Library) reap(idle time.Duration) {
	defer close(l.reaperDone)
	t := time.NewTicker(max(idle/2, 10*time.Millisecond))
	defer t.Stop()
	for {
		select {
		case <-l.reaperStop:
			return
		case <-t.C:
		}
		for _, c := range l.liveConns() {
			if c.idleFor() < idle {
				continue
			}
			l.log.warnf("reaping conn %d (%s), idle for %s", c.id, c.Role(), c.idleFor().Truncate(time.Millisecond))
			if err := c.Close(); err != nil {
				l.log.warnf("reap conn %d: %v", c.id, err)
			}
		}
	}
}
