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
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/tcpsock/api"
)

func gatherValue(t *testing.T, g prometheus.Gatherer, name string) float64 {
	t.Helper()
	families, err := g.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		m := f.GetMetric()[0]
		if c := m.GetCounter(); c != nil {
			return c.GetValue()
		}
		return m.GetGauge().GetValue()
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	_ = c.Write(m)
	return m.GetCounter().GetValue()
}

func TestLibraryCloseClosesEverything(t *testing.T) {
	lib, err := New(testConfig())
	require.NoError(t, err)

	p := newPeer(t)
	c, err := lib.TCP()
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background(), "127.0.0.1", p.port()))
	srv, err := lib.TCP()
	require.NoError(t, err)
	require.NoError(t, srv.Bind(context.Background(), "127.0.0.1", 0))
	u, err := lib.UDP()
	require.NoError(t, err)
	assert.Equal(t, 2, lib.Len())
	waitFor(t, func() bool { return lib.Running() == 3 })

	require.NoError(t, lib.Close())
	assert.True(t, lib.Closed())
	assert.Equal(t, RoleClosed, c.Role())
	assert.Equal(t, RoleClosed, srv.Role())
	assert.Equal(t, 0, lib.Len())
	_, err = u.Receive(0)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = lib.TCP()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = lib.UDP()
	assert.ErrorIs(t, err, ErrClosed)
	_, _, err = lib.Select(context.Background(), nil, nil, 0)
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, lib.Close())
}

func TestLibraryMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	config := testConfig()
	config.Registerer = reg
	lib, err := New(config)
	require.NoError(t, err)
	defer lib.Close()
	assert.Same(t, reg, lib.Gatherer())

	p := newPeer(t)
	c, err := lib.TCP()
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background(), "127.0.0.1", p.port()))
	remote := p.next(t)
	require.NoError(t, c.SetTimeouts(time.Second, 2*time.Second))

	_, err = c.Send(context.Background(), []byte("four"), 0, -1)
	require.NoError(t, err)
	_, err = remote.Write([]byte("xy"))
	require.NoError(t, err)
	_, err = c.Receive(context.Background(), api.Bytes(2), nil)
	require.NoError(t, err)

	assert.Equal(t, float64(4), gatherValue(t, reg, "tcpsock_bytes_sent_total"))
	assert.Equal(t, float64(2), gatherValue(t, reg, "tcpsock_bytes_received_total"))
	assert.Equal(t, float64(1), gatherValue(t, reg, "tcpsock_open_connections"))

	// a second library on the same registerer shares the collectors
	other, err := New(config)
	require.NoError(t, err)
	defer other.Close()
	assert.Equal(t, float64(4), counterValue(other.metrics.bytesSent))

	require.NoError(t, c.Close())
	assert.Equal(t, float64(0), gatherValue(t, reg, "tcpsock_open_connections"))
}

func TestLibraryReapsIdleConnections(t *testing.T) {
	var out bytes.Buffer
	config := testConfig()
	config.ReapIdleAfter = 50 * time.Millisecond
	lib, err := New(config)
	require.NoError(t, err)
	defer lib.Close()

	c, err := lib.TCP()
	require.NoError(t, err)
	waitFor(t, func() bool { return c.Role() == RoleClosed })
	assert.Equal(t, 0, lib.Len())

	DebugLibraryDetail(&out, lib)
	assert.Contains(t, out.String(), "library open:0")
}

func TestLibraryBoundedPool(t *testing.T) {
	config := testConfig()
	config.PoolSize = 1
	lib, err := New(config)
	require.NoError(t, err)
	defer lib.Close()

	srv, err := lib.TCP()
	require.NoError(t, err)
	require.NoError(t, srv.Bind(context.Background(), "127.0.0.1", 0))

	// the only worker runs the accept loop, so a client cannot start its pumps
	p := newPeer(t)
	c, err := lib.TCP()
	require.NoError(t, err)
	err = c.Connect(context.Background(), "127.0.0.1", p.port())
	assert.Error(t, err)
	assert.Equal(t, RoleUninitialized, c.Role())
}

func TestDebugLibraryDetail(t *testing.T) {
	lib := newTestLibrary(t)
	p := newPeer(t)
	c, err := lib.TCP()
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background(), "127.0.0.1", p.port()))

	var out bytes.Buffer
	DebugLibraryDetail(&out, lib)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "role:client")
	assert.Contains(t, lines[1], "peer:127.0.0.1:")
}

func TestNewRejectsBadConfig(t *testing.T) {
	config := testConfig()
	config.BufferCapacity = 1
	_, err := New(config)
	assert.Error(t, err)
}
