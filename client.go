package memcache

import (
	"context"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/pior/memcache-text/ascii"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// DefaultConnectTimeout bounds dialing a server when Config.ConnectTimeout is zero.
const DefaultConnectTimeout = time.Second

// Config holds configuration for the memcache client.
// The zero value is usable.
type Config struct {
	// PersistentID names the option session shared with other clients
	// created with the same id and Registry.
	// Empty means a private session.
	PersistentID string

	// Registry holds the persistent option sessions.
	// If nil, DefaultRegistry is used.
	Registry *Registry

	// Dialer is the net.Dialer used to create new connections.
	// If nil, a dialer with ConnectTimeout is used.
	Dialer *net.Dialer

	// ConnectTimeout bounds dialing when Dialer is nil.
	// Zero means DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// Timeout bounds each request/reply exchange when the context has no
	// deadline. Zero means no limit.
	Timeout time.Duration

	// Logger receives connection and protocol events.
	// If nil, logging is disabled.
	Logger *zap.Logger

	// NewCircuitBreaker creates a circuit breaker for a server.
	// Called once per server address when its pool is created.
	// If nil, no circuit breaker is used.
	NewCircuitBreaker func(serverAddr string) *gobreaker.CircuitBreaker[bool]

	// Metrics receives the client counters.
	// If nil, the client keeps them in a private set.
	Metrics *metrics.Set

	// for testing purposes only
	dial func(ctx context.Context, addr string) (net.Conn, error)
}

// Client is a memcached text protocol client.
//
// Every operation returns its own Result and also records it as the
// client's last result, readable with LastResult.
type Client struct {
	id         string
	persistent bool
	pristine   bool
	session    *session

	dial    func(ctx context.Context, addr string) (net.Conn, error)
	timeout time.Duration
	logger  *zap.Logger

	newCircuitBreaker func(serverAddr string) *gobreaker.CircuitBreaker[bool]

	// Server registry and lazily created pools
	mu         sync.RWMutex
	servers    []Server
	pools      map[string]*ServerPool
	defaultKey string
	closed     bool

	result resultState
	stats  *clientStatsCollector
}

// New creates a client and registers servers.
// No connection is opened until a server is used.
func New(config Config, servers ...Server) (*Client, error) {
	registry := config.Registry
	if registry == nil {
		registry = DefaultRegistry
	}

	id := config.PersistentID
	persistent := id != ""

	var (
		sess    *session
		created bool
	)
	if persistent {
		sess, created = registry.acquire(id)
	} else {
		id = uuid.NewString()
		sess, created = newSession(), true
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	dial := config.dial
	if dial == nil {
		dialer := config.Dialer
		if dialer == nil {
			timeout := config.ConnectTimeout
			if timeout == 0 {
				timeout = DefaultConnectTimeout
			}
			dialer = &net.Dialer{Timeout: timeout}
		}
		dial = func(ctx context.Context, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp", addr)
		}
	}

	c := &Client{
		id:                id,
		persistent:        persistent,
		pristine:          created,
		session:           sess,
		dial:              dial,
		timeout:           config.Timeout,
		logger:            logger.With(zap.String("client", id)),
		newCircuitBreaker: config.NewCircuitBreaker,
		pools:             make(map[string]*ServerPool),
		stats:             newClientStatsCollector(config.Metrics),
	}

	if err := c.AddServers(servers); err != nil {
		return nil, err
	}
	return c, nil
}

// ID returns the session id: the PersistentID, or a generated id.
func (c *Client) ID() string {
	return c.id
}

// IsPersistent reports whether the client was created with a PersistentID.
func (c *Client) IsPersistent() bool {
	return c.persistent
}

// IsPristine reports whether this client created its option session,
// as opposed to joining one created by another client.
func (c *Client) IsPristine() bool {
	return c.pristine
}

// Close closes every connection. The client cannot be used afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	pools := c.takePoolsLocked()
	c.closed = true
	c.mu.Unlock()

	closePools(pools)
}

// Quit closes every connection and keeps the server list.
// Connections are reopened on next use, and failed servers are retried.
func (c *Client) Quit() Result {
	c.mu.Lock()
	pools := c.takePoolsLocked()
	c.mu.Unlock()

	closePools(pools)
	return c.result.set(newResult(ResSuccess, ""))
}

// takePoolsLocked detaches the pools so they can be closed without c.mu:
// closing waits for in-flight exchanges, which must not block other calls.
func (c *Client) takePoolsLocked() map[string]*ServerPool {
	pools := c.pools
	c.pools = make(map[string]*ServerPool)
	return pools
}

func closePools(pools map[string]*ServerPool) {
	for _, sp := range pools {
		sp.Close()
	}
}

// AddServer registers a server. Registering the same host:port twice
// returns ErrServerExists.
func (c *Client) AddServer(host string, port int, weight int) error {
	return c.AddServers([]Server{{Host: host, Port: port, Weight: weight}})
}

// AddServers registers servers in order and stops at the first failure.
func (c *Client) AddServers(servers []Server) error {
	for _, srv := range servers {
		if err := c.addServer(srv); err != nil {
			c.result.set(newResult(ResFailure, err.Error()))
			return err
		}
	}
	c.result.set(newResult(ResSuccess, ""))
	return nil
}

func (c *Client) addServer(srv Server) error {
	if srv.Port == 0 {
		srv.Port = DefaultPort
	}
	if srv.Host == "" {
		return fmt.Errorf("memcache: server without host")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.servers {
		if existing.Key() == srv.Key() {
			return fmt.Errorf("%w: %s", ErrServerExists, srv.Key())
		}
	}
	c.servers = append(c.servers, srv)
	return nil
}

// ServerList returns the registered servers in registration order.
func (c *Client) ServerList() []Server {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Server(nil), c.servers...)
}

// ServerByKey returns the server an operation with serverKey would use.
// An empty serverKey names the default server.
func (c *Client) ServerByKey(serverKey string) (Server, error) {
	sp, err := c.serverPool(serverKey)
	if err != nil {
		c.result.set(errorResult(err))
		return Server{}, err
	}
	c.result.set(newResult(ResSuccess, ""))
	return sp.Server(), nil
}

// ResetServerList closes every connection and forgets every server.
func (c *Client) ResetServerList() Result {
	c.mu.Lock()
	pools := c.takePoolsLocked()
	c.servers = nil
	c.defaultKey = ""
	c.mu.Unlock()

	closePools(pools)
	return c.result.set(newResult(ResSuccess, ""))
}

// serverPool resolves serverKey to a pool, creating it on first use.
// An empty serverKey selects the default server: the first registered
// server, remembered until ResetServerList.
func (c *Client) serverPool(serverKey string) (*ServerPool, error) {
	// Fast path: read lock
	c.mu.RLock()
	key := serverKey
	if key == "" {
		key = c.defaultKey
	}
	sp, exists := c.pools[key]
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, ErrClientClosed
	}
	if exists && key != "" {
		return sp, nil
	}

	// Slow path: write lock and create
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}

	if serverKey == "" {
		if c.defaultKey == "" {
			if len(c.servers) == 0 {
				return nil, ErrNoServers
			}
			c.defaultKey = c.servers[0].Key()
		}
		serverKey = c.defaultKey
	}

	return c.getOrCreatePoolLocked(serverKey)
}

// getOrCreatePoolLocked must be called with c.mu held for writing.
func (c *Client) getOrCreatePoolLocked(serverKey string) (*ServerPool, error) {
	// Double-check after acquiring write lock
	if sp, exists := c.pools[serverKey]; exists {
		return sp, nil
	}

	var srv Server
	found := false
	for _, s := range c.servers {
		if s.Key() == serverKey {
			srv, found = s, true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrUnknownServer, serverKey)
	}

	var cb *gobreaker.CircuitBreaker[bool]
	if c.newCircuitBreaker != nil {
		cb = c.newCircuitBreaker(serverKey)
	}

	addr := srv.Key()
	dial := func(ctx context.Context) (*Connection, error) {
		netConn, err := c.dial(ctx, addr)
		if err != nil {
			return nil, err
		}
		return NewConnection(netConn, c.timeout), nil
	}

	sp, err := newServerPool(srv, dial, cb, c.logger)
	if err != nil {
		return nil, err
	}
	c.pools[serverKey] = sp
	return sp, nil
}

// allPools returns a pool per registered server in registration order.
func (c *Client) allPools() ([]*ServerPool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}
	if len(c.servers) == 0 {
		return nil, ErrNoServers
	}

	pools := make([]*ServerPool, 0, len(c.servers))
	for _, srv := range c.servers {
		sp, err := c.getOrCreatePoolLocked(srv.Key())
		if err != nil {
			return nil, err
		}
		pools = append(pools, sp)
	}
	return pools, nil
}

// wireKey applies the session prefix and validates the result.
func wireKey(opts SessionOptions, key string) (string, error) {
	full := opts.PrefixKey + key
	if err := ascii.ValidateKey(full); err != nil {
		return "", err
	}
	return full, nil
}

// SetOption sets one session option. Unknown options are stored without
// effect; invalid values for known options return an *OptionError.
func (c *Client) SetOption(opt Option, value any) error {
	if err := c.session.set(opt, value); err != nil {
		c.result.set(errorResult(err))
		return err
	}
	c.result.set(newResult(ResSuccess, ""))
	return nil
}

// SetOptions applies options in ascending option order and stops at the
// first invalid value.
func (c *Client) SetOptions(opts map[Option]any) error {
	keys := make([]Option, 0, len(opts))
	for opt := range opts {
		keys = append(keys, opt)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, opt := range keys {
		if err := c.SetOption(opt, opts[opt]); err != nil {
			return err
		}
	}
	return nil
}

// GetOption returns the value of an option. ok is false, and the result
// is FAILURE, for an unknown option that was never set.
func (c *Client) GetOption(opt Option) (value any, ok bool) {
	value, ok = c.session.get(opt)
	if !ok {
		c.result.set(newResult(ResFailure, "option missed"))
		return nil, false
	}
	c.result.set(newResult(ResSuccess, ""))
	return value, true
}

// Options returns a snapshot of the recognized session options.
func (c *Client) Options() SessionOptions {
	return c.session.snapshot()
}

// LastResult returns the result of the most recent operation.
func (c *Client) LastResult() Result {
	return c.result.get()
}

// ResultCode returns the code of the most recent operation.
func (c *Client) ResultCode() ResultCode {
	return c.result.get().Code
}

// ResultMessage returns the message of the most recent operation.
func (c *Client) ResultMessage() string {
	return c.result.get().Message
}

// Stats returns a snapshot of client statistics.
func (c *Client) Stats() ClientStats {
	return c.stats.snapshot()
}

// WritePrometheus writes the client counters in Prometheus text format.
func (c *Client) WritePrometheus(w io.Writer) {
	c.stats.writePrometheus(w)
}

// AllPoolStats returns stats for the servers that have a pool, in
// registration order.
func (c *Client) AllPoolStats() []ServerPoolStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := make([]ServerPoolStats, 0, len(c.pools))
	for _, srv := range c.servers {
		if sp, ok := c.pools[srv.Key()]; ok {
			stats = append(stats, sp.Stats())
		}
	}
	return stats
}

// fail records err as the last result and returns it.
func (c *Client) fail(err error) (Result, error) {
	c.stats.recordError()
	return c.result.set(errorResult(err)), err
}
