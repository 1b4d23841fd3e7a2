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
	"testing"

	"github.com/stretchr/testify/suite"
)

type DebugTestSuite struct {
	suite.Suite
}

func (s *DebugTestSuite) TestLogColor() {
	SetLogLevel(levelTrace)
	defer SetLogLevel(levelWarn)

	internalLogger.tracef("this is tracef %s", "hello world")
	internalLogger.infof("this is infof %s", "hello world")
	internalLogger.debugf("this is debugf %s", "hello world")
	internalLogger.warnf("this is warnf %s", "hello world")
	internalLogger.errorf("this is errorf %s", "hello world")
}

func (s *DebugTestSuite) TestLevelFilter() {
	var out bytes.Buffer
	l := newLogger("test", &out)

	SetLogLevel(levelWarn)
	l.infof("hidden")
	s.Empty(out.String())

	l.warnf("shown %d", 1)
	s.Contains(out.String(), "Warn")
	s.Contains(out.String(), "shown 1")
	s.Contains(out.String(), "debug_test.go:")

	out.Reset()
	l.Printf("from the pool")
	s.Contains(out.String(), "from the pool")

	SetLogLevel(levelNoPrint + 1)
	out.Reset()
	l.errorf("still filtered by warn")
	s.Contains(out.String(), "still filtered by warn")

	SetLogLevel(levelNoPrint)
	out.Reset()
	l.errorf("nothing")
	s.Empty(out.String())
	SetLogLevel(levelWarn)
}

func TestDebugTestSuite(t *testing.T) {
	suite.Run(t, new(DebugTestSuite))
}
