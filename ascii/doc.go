// Package ascii provides a low-level wire protocol implementation for the
// memcached text protocol.
//
// It covers serialization of commands and parsing of replies without any
// connection management, so higher-level clients can decide how to pool,
// retry and route.
//
// # Core Types
//
//   - Request: a text protocol command (set, add, cas, get, gets, delete, ...)
//   - Value: one VALUE block of a retrieval reply
//   - Stat and ItemInfo: lines of stats and cachedump replies
//
// # Serialization and Parsing
//
// WriteRequest serializes requests to wire format:
//
//	req := ascii.NewStorageRequest(ascii.VerbSet, "mykey", 0, 60, []byte("hello"))
//	err := ascii.WriteRequest(conn, req)
//
// Replies are parsed by shape:
//
//	r := bufio.NewReader(conn)
//	status, err := ascii.ReadLine(r)  // STORED, DELETED, 42, VERSION 1.6.21, ...
//	values, err := ascii.ReadValues(r) // VALUE ... END
//	stats, err := ascii.ReadStats(r)   // STAT ... END
//
// # Error Handling
//
// ERROR, CLIENT_ERROR and SERVER_ERROR lines are returned as *GenericError,
// *ClientError and *ServerError. Malformed replies are returned as
// *ParseError and I/O failures as *ConnectionError.
//
// Use ShouldCloseConnection to decide whether the connection can be reused:
//
//	if ascii.ShouldCloseConnection(err) {
//	    conn.Close()
//	}
package ascii
