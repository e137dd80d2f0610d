// Package memcache is a memcached client for the text protocol.
//
// A Client talks to a list of servers, one lazily opened connection per
// server. Item operations go to the default server (the first registered
// one) unless a ByKey variant names a server by its "host:port" key.
// Pool-wide operations (Flush, GetStats, GetVersion, GetAllKeys) run on
// every server concurrently.
//
//	client, err := memcache.New(memcache.Config{}, memcache.Server{Host: "localhost", Port: 11211})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	res, err := client.Set(ctx, "user:1", User{Name: "ann"}, 3600)
//	item, err := client.Get(ctx, "user:1")
//	if item.Found() {
//	    var u User
//	    err = item.Value.Unmarshal(&u)
//	}
//
// # Results
//
// Every operation returns a Result with a ResultCode, and records it as the
// client's last result. Cache outcomes (a miss, an add on an existing key,
// a stale CAS token) are results, not errors. Errors are reserved for
// failures: invalid keys or options, payload errors, connection and
// protocol failures. ResultCodeOf maps an error to its code.
//
// # Sessions
//
// Options (serializer, compression, key prefix) live in a session. Clients
// created with the same Config.PersistentID share it, through
// DefaultRegistry unless Config.Registry names another one:
//
//	a, _ := memcache.New(memcache.Config{PersistentID: "web"}, srv)
//	b, _ := memcache.New(memcache.Config{PersistentID: "web"}, srv)
//	_ = a.SetOption(memcache.OptPrefixKey, "app:")
//	// b now prefixes its keys with "app:" too.
//
// # Connection failures
//
// A server that cannot be reached is marked failed and every later call to
// it returns the same *ConnectionError without dialing, until Quit or
// ResetServerList. Connections broken after they were established are
// discarded and reopened on the next call. A circuit breaker can be set
// with Config.NewCircuitBreaker.
package memcache
