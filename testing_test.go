package memcache

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pior/memcache-text/internal/memtest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func serverOf(s *memtest.Server) Server {
	return Server{Host: s.Host(), Port: s.Port()}
}

// newTestClient creates a client on the given servers, closed with the test.
func newTestClient(t testing.TB, servers ...*memtest.Server) *Client {
	t.Helper()
	return newTestClientWithConfig(t, Config{}, servers...)
}

func newTestClientWithConfig(t testing.TB, config Config, servers ...*memtest.Server) *Client {
	t.Helper()

	if config.Logger == nil {
		config.Logger = zaptest.NewLogger(t)
	}
	if config.Timeout == 0 {
		config.Timeout = 2 * time.Second
	}

	list := make([]Server, 0, len(servers))
	for _, s := range servers {
		list = append(list, serverOf(s))
	}

	client, err := New(config, list...)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

// unreachableServer returns the address of a port nobody listens on.
func unreachableServer(t testing.TB) Server {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().(*net.TCPAddr)
	require.NoError(t, listener.Close())

	return Server{Host: addr.IP.String(), Port: addr.Port}
}

// requireResult checks the (Result, error) pair of an operation:
//
//	requireResult(t, ResSuccess)(c.Set(ctx, "k", "v", 0))
func requireResult(t testing.TB, expected ResultCode) func(Result, error) {
	return func(res Result, err error) {
		t.Helper()
		require.NoError(t, err)
		require.Equal(t, expected, res.Code, "result: %s", res)
	}
}

func requireValue(t testing.TB, c *Client, key string, expected any) {
	t.Helper()
	item, err := c.Get(context.Background(), key)
	require.NoError(t, err)
	require.True(t, item.Found(), "key %q not found: %s", key, item.Result)
	require.Equal(t, expected, item.Value.Interface())
}

func requireMissing(t testing.TB, c *Client, key string) {
	t.Helper()
	item, err := c.Get(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, ResNotFound, item.Code)
}
