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
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/tcpsock/pkg/ringbuf"
)

const (
	defaultScratchSize      = 512
	defaultAcceptBackoffMax = time.Second
	defaultDrainTimeout     = 10 * time.Second
	defaultMaxOpenFiles     = 4096
	minBufferCapacity       = 16
)

// Config is used to tune a Library
type Config struct {
	// BufferCapacity is the size of each inbound and outbound ring buffer.
	// A buffer holds at most BufferCapacity-1 bytes.
	BufferCapacity int

	// ScratchSize is the size of the reader pump's socket read buffer.
	ScratchSize int

	// PoolSize bounds the goroutine pool running the pumps and accept loops.
	// Every client uses two workers and every server one, so a bounded pool
	// also bounds the number of live sockets. Zero or less means unbounded.
	PoolSize int

	// ReapIdleAfter enables the idle reaper: connections without caller
	// activity for that long are closed and logged. Zero disables it.
	ReapIdleAfter time.Duration

	// AcceptBackoffMax caps the delay between retries of a failing accept.
	AcceptBackoffMax time.Duration

	// DrainTimeout bounds how long Close waits for the writer pump to push
	// buffered bytes to the peer. Negative waits forever.
	DrainTimeout time.Duration

	// MaxOpenFiles is the open descriptor count above which the process is
	// reported unhealthy.
	MaxOpenFiles int

	// LogOutput is where the library logs. Default is os.Stdout.
	LogOutput io.Writer

	// Registerer receives the prometheus collectors. Nil uses a private registry.
	Registerer prometheus.Registerer

	// MeterProvider and TracerProvider default to no-op providers.
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// DefaultConfig is used to return a default configuration
func DefaultConfig() *Config {
	return &Config{
		BufferCapacity:   ringbuf.DefaultCapacity,
		ScratchSize:      defaultScratchSize,
		AcceptBackoffMax: defaultAcceptBackoffMax,
		DrainTimeout:     defaultDrainTimeout,
		MaxOpenFiles:     defaultMaxOpenFiles,
	}
}

// VerifyConfig is used to verify the sanity of configuration
func VerifyConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config is nil")
	}
	if config.BufferCapacity < minBufferCapacity {
		return fmt.Errorf("BufferCapacity must be at least %d, got %d", minBufferCapacity, config.BufferCapacity)
	}
	if config.ScratchSize <= 0 {
		return fmt.Errorf("ScratchSize must be positive")
	}
	if config.ReapIdleAfter < 0 {
		return fmt.Errorf("ReapIdleAfter must not be negative")
	}
	if config.AcceptBackoffMax <= 0 {
		return fmt.Errorf("AcceptBackoffMax must be positive")
	}
	if config.MaxOpenFiles < 0 {
		return fmt.Errorf("MaxOpenFiles must not be negative")
	}
	return nil
}
