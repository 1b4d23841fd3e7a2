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
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type UDPTestSuite struct {
	suite.Suite
	lib *Library
}

func (s *UDPTestSuite) SetupTest() {
	s.lib = newTestLibrary(s.T())
}

func TestUDPTestSuite(t *testing.T) {
	suite.Run(t, new(UDPTestSuite))
}

func (s *UDPTestSuite) TestSendToAndReceiveFrom() {
	a, err := s.lib.UDP()
	s.Require().NoError(err)
	s.Require().NoError(a.SetSockName("127.0.0.1", 0))
	_, aport, err := a.LocalAddr()
	s.Require().NoError(err)

	b, err := s.lib.UDP()
	s.Require().NoError(err)
	n, err := b.SendTo([]byte("ping"), "127.0.0.1", aport)
	s.Require().NoError(err)
	s.Equal(4, n)

	a.SetTimeout(1)
	data, host, port, err := a.ReceiveFrom(0)
	s.Require().NoError(err)
	s.Equal("ping", string(data))
	s.Equal("127.0.0.1", host)
	_, bport, err := b.LocalAddr()
	s.Require().NoError(err)
	s.Equal(bport, port)

	s.ErrorIs(a.SetSockName("127.0.0.1", 0), ErrAlreadyInitialized)
}

func (s *UDPTestSuite) TestConnected() {
	a, err := s.lib.UDP()
	s.Require().NoError(err)
	s.Require().NoError(a.SetSockName("127.0.0.1", 0))
	_, aport, err := a.LocalAddr()
	s.Require().NoError(err)

	b, err := s.lib.UDP()
	s.Require().NoError(err)
	_, err = b.Send([]byte("x"))
	s.ErrorIs(err, ErrNotConnected)
	_, _, err = b.PeerAddr()
	s.ErrorIs(err, ErrNotConnected)

	s.Require().NoError(b.SetPeerName("127.0.0.1", aport))
	host, port, err := b.PeerAddr()
	s.Require().NoError(err)
	s.Equal("127.0.0.1", host)
	s.Equal(aport, port)
	_, err = b.SendTo([]byte("x"), "127.0.0.1", aport)
	s.ErrorIs(err, ErrAlreadyInitialized)

	_, err = b.Send([]byte("hello"))
	s.Require().NoError(err)
	a.SetTimeout(1)
	data, err := a.Receive(3)
	s.Require().NoError(err)
	s.Equal("hel", string(data))
}

func (s *UDPTestSuite) TestTimeoutAndClose() {
	a, err := s.lib.UDP()
	s.Require().NoError(err)
	s.Require().NoError(a.SetSockName("*", 0))

	a.SetTimeout(0)
	start := time.Now()
	_, err = a.Receive(0)
	s.ErrorIs(err, ErrTimeout)
	s.Less(time.Since(start), time.Second)

	s.NoError(a.Close())
	s.NoError(a.Close())
	_, err = a.Receive(0)
	s.ErrorIs(err, ErrClosed)
	_, _, err = a.LocalAddr()
	s.ErrorIs(err, ErrClosed)
}
