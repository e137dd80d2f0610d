package memcache

import (
	"bufio"
	"context"
	"errors"
	"sync"

	"github.com/pior/memcache-text/ascii"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// slotState is the connection state of one server.
type slotState int

const (
	slotUnopened slotState = iota
	slotOpen
	slotFailed
)

func (s slotState) String() string {
	switch s {
	case slotUnopened:
		return "unopened"
	case slotOpen:
		return "open"
	case slotFailed:
		return "failed"
	}
	return "unknown"
}

// ServerPool owns the single connection of one server, opened on first use.
//
// A failed dial moves the pool to the failed state: every later call returns
// the same ConnectionError without dialing again, until the client is reset.
type ServerPool struct {
	server         Server
	conn           *connHolder
	circuitBreaker *gobreaker.CircuitBreaker[bool]
	logger         *zap.Logger

	mu      sync.Mutex
	state   slotState
	failure error
}

func newServerPool(server Server, dial func(ctx context.Context) (*Connection, error), cb *gobreaker.CircuitBreaker[bool], logger *zap.Logger) (*ServerPool, error) {
	sp := &ServerPool{
		server:         server,
		circuitBreaker: cb,
		logger:         logger.With(zap.String("server", server.Key())),
	}

	conn, err := newConnHolder(func(ctx context.Context) (*Connection, error) {
		conn, err := dial(ctx)
		if err != nil {
			return nil, &ConnectionError{Server: server.Key(), Op: "dial", Err: err}
		}
		sp.logger.Debug("connection opened")
		return conn, nil
	})
	if err != nil {
		return nil, err
	}
	sp.conn = conn
	return sp, nil
}

// Server returns the server this pool connects to.
func (sp *ServerPool) Server() Server {
	return sp.server
}

// ServerPoolStats contains stats for a single server pool
type ServerPoolStats struct {
	Server               string
	State                string
	PoolStats            PoolStats
	CircuitBreakerState  gobreaker.State
	CircuitBreakerCounts gobreaker.Counts
}

func (sp *ServerPool) Stats() ServerPoolStats {
	sp.mu.Lock()
	state := sp.state
	sp.mu.Unlock()

	stats := ServerPoolStats{
		Server:    sp.server.Key(),
		State:     state.String(),
		PoolStats: sp.conn.stats(),
	}
	if sp.circuitBreaker != nil {
		stats.CircuitBreakerState = sp.circuitBreaker.State()
		stats.CircuitBreakerCounts = sp.circuitBreaker.Counts()
	}
	return stats
}

// Execute runs one request/reply exchange on the server connection.
// The exchange is wrapped with the server's circuit breaker when one is
// configured. Without a breaker, a failed server stays failed until the
// client is reset; with one, the breaker's half-open probes retry it.
func (sp *ServerPool) Execute(ctx context.Context, req *ascii.Request, read func(r *bufio.Reader) error) error {
	if sp.circuitBreaker == nil {
		return sp.execDirect(ctx, req, read)
	}

	_, err := sp.circuitBreaker.Execute(func() (bool, error) {
		// A half-open breaker lets a probe through: it dials again even if
		// the server is marked failed.
		if sp.circuitBreaker.State() == gobreaker.StateHalfOpen {
			sp.clearFailed()
		}
		err := sp.execDirect(ctx, req, read)
		return err == nil, err
	})
	return err
}

// execDirect performs the exchange without circuit breaker.
func (sp *ServerPool) execDirect(ctx context.Context, req *ascii.Request, read func(r *bufio.Reader) error) error {
	if err := sp.failed(); err != nil {
		return err
	}

	opened := false
	discarded, err := sp.conn.use(ctx, func(conn *Connection) error {
		opened = true
		return conn.Exchange(ctx, req, read)
	})
	if !opened {
		var connErr *ConnectionError
		if errors.As(err, &connErr) {
			sp.markFailed(connErr)
		}
		return err
	}
	sp.markOpen()

	if discarded {
		sp.logger.Debug("connection closed after error", zap.String("command", string(req.Verb)), zap.Error(err))
	}
	return err
}

func (sp *ServerPool) failed() error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.state == slotFailed {
		return sp.failure
	}
	return nil
}

func (sp *ServerPool) markFailed(err error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.state != slotFailed {
		sp.logger.Warn("connection failed", zap.Error(err))
	}
	sp.state = slotFailed
	sp.failure = err
}

func (sp *ServerPool) clearFailed() {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.state == slotFailed {
		sp.state = slotUnopened
		sp.failure = nil
	}
}

func (sp *ServerPool) markOpen() {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.state == slotUnopened {
		sp.state = slotOpen
	}
}

// Close destroys the connection. The pool cannot be used afterwards.
func (sp *ServerPool) Close() {
	sp.conn.close()
	sp.logger.Debug("server pool closed")
}
