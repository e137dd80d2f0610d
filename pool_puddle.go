package memcache

import (
	"context"
	"sync/atomic"

	"github.com/jackc/puddle/v2"
	"github.com/pior/memcache-text/ascii"
)

// connHolder keeps the one connection of a server in a puddle pool of size
// 1. Concurrent callers queue on Acquire until the connection is released.
type connHolder struct {
	pool      *puddle.Pool[*Connection]
	opened    atomic.Uint64
	discarded atomic.Uint64
}

func newConnHolder(open func(ctx context.Context) (*Connection, error)) (*connHolder, error) {
	h := &connHolder{}

	pool, err := puddle.NewPool(&puddle.Config[*Connection]{
		Constructor: func(ctx context.Context) (*Connection, error) {
			conn, err := open(ctx)
			if err != nil {
				return nil, err
			}
			h.opened.Add(1)
			return conn, nil
		},
		Destructor: func(conn *Connection) {
			h.discarded.Add(1)
			_ = conn.Close()
		},
		MaxSize: 1,
	})
	if err != nil {
		return nil, err
	}
	h.pool = pool
	return h, nil
}

// use hands the connection to fn, opening it first if needed. The
// connection is discarded when fn fails with an error that leaves the
// stream in an unknown state.
func (h *connHolder) use(ctx context.Context, fn func(conn *Connection) error) (discarded bool, err error) {
	res, err := h.pool.Acquire(ctx)
	if err != nil {
		return false, err
	}

	if err := fn(res.Value()); err != nil {
		if ascii.ShouldCloseConnection(err) {
			res.Destroy()
			return true, err
		}
		res.Release()
		return false, err
	}

	res.Release()
	return false, nil
}

func (h *connHolder) close() {
	h.pool.Close()
}

func (h *connHolder) stats() PoolStats {
	s := h.pool.Stat()

	return PoolStats{
		AcquireCount:      uint64(s.AcquireCount()),
		AcquireWaitCount:  uint64(s.EmptyAcquireCount()),
		AcquireErrors:     uint64(s.CanceledAcquireCount()),
		AcquireWaitTimeNs: uint64(s.EmptyAcquireWaitTime().Nanoseconds()),
		CreatedConns:      h.opened.Load(),
		DestroyedConns:    h.discarded.Load(),
		TotalConns:        s.TotalResources(),
		IdleConns:         s.IdleResources(),
		ActiveConns:       s.AcquiredResources(),
	}
}
