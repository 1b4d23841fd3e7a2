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
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type ConfigTestSuite struct {
	suite.Suite
}

func TestConfigTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (s *ConfigTestSuite) TestVerifyConfig() {
	s.Require().Error(VerifyConfig(nil))

	config := DefaultConfig()
	s.Require().NoError(VerifyConfig(config))

	config.BufferCapacity = 8
	s.Require().Error(VerifyConfig(config))
	config.BufferCapacity = 1 << 16

	config.ScratchSize = 0
	s.Require().Error(VerifyConfig(config))
	config.ScratchSize = 512

	config.ReapIdleAfter = -time.Second
	s.Require().Error(VerifyConfig(config))
	config.ReapIdleAfter = 0

	config.AcceptBackoffMax = 0
	s.Require().Error(VerifyConfig(config))
	config.AcceptBackoffMax = time.Second

	config.MaxOpenFiles = -1
	s.Require().Error(VerifyConfig(config))
	config.MaxOpenFiles = 0

	s.Require().NoError(VerifyConfig(config))
}

func (s *ConfigTestSuite) TestMinTimeout() {
	st := DefaultSettings()
	s.Equal(time.Duration(-1), st.MinTimeout())
	st.SingleTimeout = 2 * time.Second
	s.Equal(2*time.Second, st.MinTimeout())
	st.TotalTimeout = time.Second
	s.Equal(time.Second, st.MinTimeout())
	st.SingleTimeout = -1
	s.Equal(time.Second, st.MinTimeout())
	st.SingleTimeout = 0
	s.Equal(time.Duration(0), st.MinTimeout())
}

func (s *ConfigTestSuite) TestCloneIsDeep() {
	st, err := DefaultSettings().withOption(OptionKeepAlive, true)
	s.Require().NoError(err)
	st, err = st.withOption(OptionLinger, Linger{On: true, Seconds: 5})
	s.Require().NoError(err)

	c := st.Clone()
	*c.KeepAlive = false
	c.Linger.Seconds = 1
	s.True(*st.KeepAlive)
	s.Equal(5, st.Linger.Seconds)

	_, err = st.withOption(OptionLinger, (*Linger)(nil))
	s.ErrorIs(err, ErrUnsupportedOption)
	_, err = st.withOption(OptionLinger, 3)
	s.ErrorIs(err, ErrUnsupportedOption)
}

func TestFormatIP(t *testing.T) {
	cases := map[string]string{
		"10.0.0.1":          "10.0.0.1",
		"192.168.001.010":   "",
		"::ffff:127.0.0.1":  "127.0.0.1",
		"::1":               "0000:0000:0000:0000:0000:0000:0000:0001",
		"2001:db8::ff00:42": "2001:0db8:0000:0000:0000:0000:ff00:0042",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatIP(net.ParseIP(in)), in)
	}
	assert.Equal(t, "1.2.3.4", FormatIP(net.IPv4(1, 2, 3, 4)))
}

func TestSplitAddr(t *testing.T) {
	host, port, err := splitAddr(&net.TCPAddr{IP: net.ParseIP("::1"), Port: 80})
	assert.NoError(t, err)
	assert.Equal(t, "0000:0000:0000:0000:0000:0000:0000:0001", host)
	assert.Equal(t, 80, port)

	_, _, err = splitAddr(nil)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestStatsFeedParent(t *testing.T) {
	parent := newStats(nil)
	child := newStats(parent)
	child.addReceived(3)
	child.addSent(4)
	child.addSent(0)

	recv, sent, _ := parent.Snapshot()
	assert.EqualValues(t, 3, recv)
	assert.EqualValues(t, 4, sent)

	child.Set(1, 2, 0)
	_, _, age := child.Snapshot()
	assert.EqualValues(t, 0, age)
	child.Set(1, 2, 3600)
	_, _, age = child.Snapshot()
	assert.InDelta(t, 3600, age, 1)
}
