package bufpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPoolReturnsEmptyBuffers(t *testing.T) {
	p := New(16, 1024)

	buf := p.Get()
	require.Equal(t, 0, buf.Len())
	require.GreaterOrEqual(t, buf.Cap(), 16)

	buf.WriteString("set foo 0 0 3\r\n")
	p.Put(buf)

	buf = p.Get()
	require.Equal(t, 0, buf.Len())
}

func TestPoolDropsOversizedBuffers(t *testing.T) {
	p := New(16, 32)

	buf := p.Get()
	buf.Write(make([]byte, 64))
	p.Put(buf) // dropped, must not panic

	require.Equal(t, 0, p.Get().Len())
}
