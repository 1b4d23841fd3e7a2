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
	"net"
	"time"

	"github.com/srediag/tcpsock/internal/transport"
)

// Option names accepted by Conn.SetOption.
const (
	OptionKeepAlive = "keepalive"
	OptionLinger    = "linger"
	OptionReuseAddr = "reuseaddr"
	OptionNoDelay   = "tcp-nodelay"
)

// Linger mirrors SO_LINGER.
type Linger struct {
	On      bool
	Seconds int
}

// Settings holds the socket tuning knobs and the two timeouts of a Conn.
// Unset (nil) options keep the operating system default. A negative timeout
// waits forever and zero never waits.
type Settings struct {
	KeepAlive *bool
	Linger    *Linger
	ReuseAddr *bool
	NoDelay   *bool

	SingleTimeout time.Duration
	TotalTimeout  time.Duration
}

// DefaultSettings returns settings that wait forever and leave every option unset.
func DefaultSettings() Settings {
	return Settings{SingleTimeout: -1, TotalTimeout: -1}
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	c := s
	if s.KeepAlive != nil {
		v := *s.KeepAlive
		c.KeepAlive = &v
	}
	if s.Linger != nil {
		v := *s.Linger
		c.Linger = &v
	}
	if s.ReuseAddr != nil {
		v := *s.ReuseAddr
		c.ReuseAddr = &v
	}
	if s.NoDelay != nil {
		v := *s.NoDelay
		c.NoDelay = &v
	}
	return c
}

// MinTimeout returns the smaller of the non-negative timeouts, or -1 if both
// wait forever. Connect and Accept wait at most this long.
func (s Settings) MinTimeout() time.Duration {
	switch {
	case s.SingleTimeout < 0:
		return s.TotalTimeout
	case s.TotalTimeout < 0:
		return s.SingleTimeout
	default:
		return min(s.SingleTimeout, s.TotalTimeout)
	}
}

// withOption returns a copy of s with the named option set to value.
func (s Settings) withOption(name string, value any) (Settings, error) {
	c := s.Clone()
	switch name {
	case OptionKeepAlive, OptionReuseAddr, OptionNoDelay:
		b, ok := value.(bool)
		if !ok {
			return s, fmt.Errorf("%w: %s expects a bool, got %T", ErrUnsupportedOption, name, value)
		}
		switch name {
		case OptionKeepAlive:
			c.KeepAlive = &b
		case OptionReuseAddr:
			c.ReuseAddr = &b
		default:
			c.NoDelay = &b
		}
	case OptionLinger:
		switch v := value.(type) {
		case Linger:
			c.Linger = &v
		case *Linger:
			if v == nil {
				return s, fmt.Errorf("%w: nil linger", ErrUnsupportedOption)
			}
			l := *v
			c.Linger = &l
		default:
			return s, fmt.Errorf("%w: linger expects a Linger, got %T", ErrUnsupportedOption, value)
		}
	default:
		return s, fmt.Errorf("%w: %q", ErrUnsupportedOption, name)
	}
	return c, nil
}

func (s Settings) applyConn(c *net.TCPConn) error {
	if s.NoDelay != nil {
		if err := c.SetNoDelay(*s.NoDelay); err != nil {
			return transportErr("set tcp-nodelay", err)
		}
	}
	if s.Linger != nil {
		sec := -1
		if s.Linger.On {
			sec = max(s.Linger.Seconds, 0)
		}
		if err := c.SetLinger(sec); err != nil {
			return transportErr("set linger", err)
		}
	}
	if s.KeepAlive != nil {
		if err := c.SetKeepAlive(*s.KeepAlive); err != nil {
			return transportErr("set keepalive", err)
		}
	}
	return nil
}

func (s Settings) applyListener(l *net.TCPListener) error {
	if s.ReuseAddr != nil {
		if err := transport.SetReuseAddr(l, *s.ReuseAddr); err != nil {
			return transportErr("set reuseaddr", err)
		}
	}
	return nil
}

func (s Settings) listenConfig() net.ListenConfig {
	var lc net.ListenConfig
	if s.ReuseAddr != nil {
		lc.Control = transport.ListenControl(*s.ReuseAddr)
	}
	return lc
}
