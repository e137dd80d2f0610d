package memcache

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// PoolStats contains statistics about the connection of one server.
//
// For Prometheus integration, expose these as:
//   - Gauges: TotalConns, IdleConns, ActiveConns
//   - Counters: AcquireCount, AcquireWaitCount, CreatedConns, DestroyedConns, AcquireErrors
type PoolStats struct {
	// Lifetime counters
	AcquireCount      uint64 // Total acquire attempts
	AcquireWaitCount  uint64 // Acquires that had to wait
	CreatedConns      uint64 // Total connections created
	DestroyedConns    uint64 // Total connections destroyed
	AcquireErrors     uint64 // Canceled acquire attempts
	AcquireWaitTimeNs uint64 // Total nanoseconds spent waiting

	// Current state gauges
	TotalConns  int32 // Total connections (0 or 1)
	IdleConns   int32 // Idle connections available
	ActiveConns int32 // Connections currently in use
}

// ClientStats contains statistics about client operations.
type ClientStats struct {
	Gets       uint64 // Keys requested by get operations
	GetHits    uint64 // Keys found by get operations
	Stores     uint64 // Store family operations (set, add, replace, append, prepend, cas)
	Deletes    uint64 // Delete operations
	Counters   uint64 // Increment and decrement operations
	Touches    uint64 // Touch operations
	BytesRead  uint64 // Payload bytes received in VALUE blocks
	BytesWrite uint64 // Payload bytes sent in storage commands
	Errors     uint64 // Operations that returned an error
}

// clientStatsCollector keeps operation counters in a metrics.Set.
// Not exported - client updates its own stats.
type clientStatsCollector struct {
	set *metrics.Set

	gets       *metrics.Counter
	getHits    *metrics.Counter
	stores     *metrics.Counter
	deletes    *metrics.Counter
	counters   *metrics.Counter
	touches    *metrics.Counter
	bytesRead  *metrics.Counter
	bytesWrite *metrics.Counter
	errors     *metrics.Counter
}

// newClientStatsCollector registers the client counters in set.
// Counters are created with GetOrCreate so clients may share one set.
func newClientStatsCollector(set *metrics.Set) *clientStatsCollector {
	if set == nil {
		set = metrics.NewSet()
	}

	return &clientStatsCollector{
		set:        set,
		gets:       set.GetOrCreateCounter(`memcache_keys_requested_total`),
		getHits:    set.GetOrCreateCounter(`memcache_keys_found_total`),
		stores:     set.GetOrCreateCounter(`memcache_commands_total{command="store"}`),
		deletes:    set.GetOrCreateCounter(`memcache_commands_total{command="delete"}`),
		counters:   set.GetOrCreateCounter(`memcache_commands_total{command="counter"}`),
		touches:    set.GetOrCreateCounter(`memcache_commands_total{command="touch"}`),
		bytesRead:  set.GetOrCreateCounter(`memcache_payload_bytes_total{direction="read"}`),
		bytesWrite: set.GetOrCreateCounter(`memcache_payload_bytes_total{direction="write"}`),
		errors:     set.GetOrCreateCounter(`memcache_errors_total`),
	}
}

func (c *clientStatsCollector) recordGet(requested, found int) {
	c.gets.Add(requested)
	c.getHits.Add(found)
}

func (c *clientStatsCollector) recordStore(size int) {
	c.stores.Inc()
	c.bytesWrite.Add(size)
}

func (c *clientStatsCollector) recordRead(size int) {
	c.bytesRead.Add(size)
}

func (c *clientStatsCollector) recordDelete() {
	c.deletes.Inc()
}

func (c *clientStatsCollector) recordCounter() {
	c.counters.Inc()
}

func (c *clientStatsCollector) recordTouch() {
	c.touches.Inc()
}

func (c *clientStatsCollector) recordError() {
	c.errors.Inc()
}

func (c *clientStatsCollector) snapshot() ClientStats {
	return ClientStats{
		Gets:       c.gets.Get(),
		GetHits:    c.getHits.Get(),
		Stores:     c.stores.Get(),
		Deletes:    c.deletes.Get(),
		Counters:   c.counters.Get(),
		Touches:    c.touches.Get(),
		BytesRead:  c.bytesRead.Get(),
		BytesWrite: c.bytesWrite.Get(),
		Errors:     c.errors.Get(),
	}
}

func (c *clientStatsCollector) writePrometheus(w io.Writer) {
	c.set.WritePrometheus(w)
}
