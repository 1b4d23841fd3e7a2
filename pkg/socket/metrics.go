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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/srediag/tcpsock/pkg/socket"

type metrics struct {
	bytesSent     prometheus.Counter
	bytesReceived prometheus.Counter
	accepted      prometheus.Counter
	selectWakeups prometheus.Counter
	open          prometheus.Gauge

	connectLatency metric.Float64Histogram
	tracer         trace.Tracer

	gatherer prometheus.Gatherer
}

func newMetrics(config *Config) (*metrics, error) {
	reg := config.Registerer
	var gatherer prometheus.Gatherer
	if reg == nil {
		r := prometheus.NewRegistry()
		reg, gatherer = r, r
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	m := &metrics{gatherer: gatherer}
	var err error
	if m.bytesSent, err = registerCounter(reg, "tcpsock_bytes_sent_total", "Bytes accepted from callers for sending."); err != nil {
		return nil, err
	}
	if m.bytesReceived, err = registerCounter(reg, "tcpsock_bytes_received_total", "Bytes handed to callers."); err != nil {
		return nil, err
	}
	if m.accepted, err = registerCounter(reg, "tcpsock_accepted_connections_total", "Connections returned by Accept."); err != nil {
		return nil, err
	}
	if m.selectWakeups, err = registerCounter(reg, "tcpsock_select_wakeups_total", "Select calls woken by a readiness notification."); err != nil {
		return nil, err
	}
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tcpsock_open_connections",
		Help: "Connections registered with the library.",
	})
	if err := reg.Register(gauge); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(prometheus.Gauge)
		if !ok {
			return nil, err
		}
		gauge = existing
	}
	m.open = gauge

	mp := config.MeterProvider
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}
	m.connectLatency, err = mp.Meter(instrumentationName).Float64Histogram(
		"tcpsock.connect.duration",
		metric.WithDescription("Time spent establishing outgoing connections."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	tp := config.TracerProvider
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}
	m.tracer = tp.Tracer(instrumentationName)
	return m, nil
}

// registerCounter registers a counter, reusing one registered earlier under
// the same name so several libraries can share a registerer.
func registerCounter(reg prometheus.Registerer, name, help string) (prometheus.Counter, error) {
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(prometheus.Counter)
		if !ok {
			return nil, err
		}
		return existing, nil
	}
	return c, nil
}

func (m *metrics) observeConnect(ctx context.Context, start time.Time) {
	m.connectLatency.Record(ctx, time.Since(start).Seconds())
}
