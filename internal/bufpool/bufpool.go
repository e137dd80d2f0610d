// Package bufpool pools bytes.Buffer values.
package bufpool

import (
	"bytes"
	"sync"
)

// Pool hands out reset buffers. Buffers that grew beyond the retain limit
// are dropped on Put.
type Pool struct {
	pool   sync.Pool
	retain int
}

// New returns a pool of buffers with initialSize capacity that keeps
// buffers up to retain bytes.
func New(initialSize, retain int) *Pool {
	return &Pool{
		pool: sync.Pool{
			New: func() any {
				return bytes.NewBuffer(make([]byte, 0, initialSize))
			},
		},
		retain: retain,
	}
}

func (p *Pool) Get() *bytes.Buffer {
	return p.pool.Get().(*bytes.Buffer)
}

func (p *Pool) Put(buf *bytes.Buffer) {
	if buf.Cap() > p.retain {
		return
	}
	buf.Reset()
	p.pool.Put(buf)
}
