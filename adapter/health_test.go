package adapter

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/tcpsock/pkg/socket"
)

func newLibrary(t *testing.T) *socket.Library {
	t.Helper()
	config := socket.DefaultConfig()
	config.LogOutput = io.Discard
	lib, err := socket.New(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lib.Close() })
	return lib
}

func status(t *testing.T, h http.Handler, path string) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code
}

func TestHealthHandler(t *testing.T) {
	lib := newLibrary(t)
	h := newHealthHandler(lib, func() (int, error) { return 10, nil })

	assert.Equal(t, http.StatusOK, status(t, h, "/live"))
	assert.Equal(t, http.StatusOK, status(t, h, "/ready"))

	require.NoError(t, lib.Close())
	assert.Equal(t, http.StatusServiceUnavailable, status(t, h, "/live"))
	assert.Equal(t, http.StatusServiceUnavailable, status(t, h, "/ready"))
}

func TestHealthHandlerDescriptorLimit(t *testing.T) {
	lib := newLibrary(t)
	h := newHealthHandler(lib, func() (int, error) { return lib.Config().MaxOpenFiles + 1, nil })
	assert.Equal(t, http.StatusServiceUnavailable, status(t, h, "/live"))

	h = newHealthHandler(lib, func() (int, error) { return 0, errors.New("unsupported") })
	assert.Equal(t, http.StatusOK, status(t, h, "/live"))
}

func TestProcessFDs(t *testing.T) {
	n, err := ProcessFDs()
	if err != nil {
		t.Skipf("descriptor count unavailable: %v", err)
	}
	assert.Greater(t, n, 0)
	assert.Equal(t, http.StatusOK, status(t, NewHealthHandler(newLibrary(t)), "/live"))
}
