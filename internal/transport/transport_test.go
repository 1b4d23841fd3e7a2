//go:build unix

package transport

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenControl(t *testing.T) {
	lc := net.ListenConfig{Control: ListenControl(true)}
	ln, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	on, err := ReuseAddr(ln.(*net.TCPListener))
	require.NoError(t, err)
	assert.True(t, on)
}

func TestSetReuseAddr(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	tl := ln.(*net.TCPListener)

	require.NoError(t, SetReuseAddr(tl, false))
	on, err := ReuseAddr(tl)
	require.NoError(t, err)
	assert.False(t, on)

	require.NoError(t, SetReuseAddr(tl, true))
	on, err = ReuseAddr(tl)
	require.NoError(t, err)
	assert.True(t, on)
}
