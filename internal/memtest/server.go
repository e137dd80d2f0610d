// Package memtest runs an in-process memcached speaking the text protocol,
// for tests.
//
// It keeps items in memory with flags, CAS counters and expiration, and
// supports the storage, retrieval, delete, counter, touch, flush_all, stats
// (general, items, slabs, cachedump), version and quit commands. Unknown
// commands are answered with ERROR. Handlers can override the reply to any
// verb to inject failures.
package memtest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pior/memcache-text/ascii"
)

// Version is the version reported by the server.
const Version = "1.6.21-memtest"

// HandlerFunc produces a raw reply for req, CRLF terminators included.
// Returning ok=false falls back to the built-in behavior.
type HandlerFunc func(req *ascii.Request) (reply string, ok bool)

type item struct {
	flags   uint32
	data    []byte
	cas     uint64
	expires time.Time
	stored  int64 // insertion sequence, for cachedump order
}

func (it *item) expired(now time.Time) bool {
	return !it.expires.IsZero() && !now.Before(it.expires)
}

// Server is an in-memory memcached.
type Server struct {
	listener net.Listener
	started  time.Time

	mu       sync.Mutex
	items    map[string]*item
	nextCAS  uint64
	seq      int64
	handlers map[ascii.Verb]HandlerFunc
	conns    map[net.Conn]struct{}
	accepted int
	commands []string
	gets     int
	hits     int

	wg sync.WaitGroup
}

// Start runs a server on a random local port. It is closed when the test
// ends.
func Start(t testing.TB) *Server {
	t.Helper()

	s, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("memtest: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

// Listen runs a server on addr.
func Listen(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	s := &Server{
		listener: listener,
		started:  time.Now(),
		items:    make(map[string]*item),
		handlers: make(map[ascii.Verb]HandlerFunc),
		conns:    make(map[net.Conn]struct{}),
	}

	s.wg.Add(1)
	go s.serve()
	return s, nil
}

// Addr returns the "host:port" the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Host returns the listening host.
func (s *Server) Host() string {
	return s.listener.Addr().(*net.TCPAddr).IP.String()
}

// Port returns the listening port.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Close stops accepting connections and closes the open ones.
func (s *Server) Close() {
	_ = s.listener.Close()
	s.DropConnections()
	s.wg.Wait()
}

// DropConnections closes every open client connection. The server keeps
// accepting new ones.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

// Handle overrides the reply to verb. A nil fn restores the built-in
// behavior.
func (s *Server) Handle(verb ascii.Verb, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		delete(s.handlers, verb)
		return
	}
	s.handlers[verb] = fn
}

// Reply makes the server answer verb with the raw reply, always.
func (s *Server) Reply(verb ascii.Verb, reply string) {
	s.Handle(verb, func(*ascii.Request) (string, bool) { return reply, true })
}

// Accepted returns the number of connections accepted so far.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Commands returns the command lines received so far, data blocks excluded.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Item returns the raw stored data and flags of key.
func (s *Server) Item(key string) (data []byte, flags uint32, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.lookupLocked(key)
	if !ok {
		return nil, 0, false
	}
	return append([]byte(nil), it.data...), it.flags, true
}

// SetItem stores raw data under key, bypassing the protocol.
func (s *Server) SetItem(key string, data []byte, flags uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storeLocked(key, flags, 0, data)
}

// Len returns the number of live items.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	n := 0
	for _, it := range s.items {
		if !it.expired(now) {
			n++
		}
	}
	return n
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.accepted++
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.conns, conn)
				s.mu.Unlock()
				_ = conn.Close()
			}()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	for {
		req, err := ascii.ReadRequest(r)
		if err != nil {
			var clientErr *ascii.ClientError
			var parseErr *ascii.ParseError
			switch {
			case errors.As(err, &clientErr):
				_, _ = w.WriteString("CLIENT_ERROR " + clientErr.Message + ascii.CRLF)
				_ = w.Flush()
				return
			case errors.As(err, &parseErr):
				_, _ = w.WriteString(ascii.ErrorGeneric + ascii.CRLF)
				if w.Flush() != nil {
					return
				}
				continue
			}
			return
		}

		if req.Verb == ascii.VerbQuit {
			return
		}

		reply := s.dispatch(req)
		if _, err := io.WriteString(w, reply); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(req *ascii.Request) string {
	s.mu.Lock()
	s.commands = append(s.commands, commandLine(req))
	handler := s.handlers[req.Verb]
	s.mu.Unlock()

	if handler != nil {
		if reply, ok := handler(req); ok {
			return reply
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch req.Verb {
	case ascii.VerbSet, ascii.VerbAdd, ascii.VerbReplace, ascii.VerbAppend, ascii.VerbPrepend, ascii.VerbCas:
		return s.storage(req) + ascii.CRLF
	case ascii.VerbGet, ascii.VerbGets:
		return s.retrieval(req)
	case ascii.VerbDelete:
		return s.delete(req) + ascii.CRLF
	case ascii.VerbIncr, ascii.VerbDecr:
		return s.counter(req) + ascii.CRLF
	case ascii.VerbTouch:
		return s.touch(req) + ascii.CRLF
	case ascii.VerbFlushAll:
		return s.flush(req) + ascii.CRLF
	case ascii.VerbStats:
		return s.stats(req)
	case ascii.VerbVersion:
		return ascii.TokenVersion + " " + Version + ascii.CRLF
	}
	return ascii.ErrorGeneric + ascii.CRLF
}

func commandLine(req *ascii.Request) string {
	var b []byte
	b = req.AppendLine(b)
	return strings.TrimSuffix(string(b), ascii.CRLF)
}

func (s *Server) lookupLocked(key string) (*item, bool) {
	it, ok := s.items[key]
	if !ok {
		return nil, false
	}
	if it.expired(time.Now()) {
		delete(s.items, key)
		return nil, false
	}
	return it, true
}

func (s *Server) storeLocked(key string, flags uint32, exptime int64, data []byte) {
	s.nextCAS++
	s.seq++
	s.items[key] = &item{
		flags:   flags,
		data:    append([]byte(nil), data...),
		cas:     s.nextCAS,
		expires: expiry(exptime),
		stored:  s.seq,
	}
}

// expiry converts a relative exptime in seconds. A negative exptime
// expires the item immediately.
func expiry(exptime int64) time.Time {
	switch {
	case exptime == 0:
		return time.Time{}
	case exptime < 0:
		return time.Unix(0, 1)
	}
	return time.Now().Add(time.Duration(exptime) * time.Second)
}

func (s *Server) storage(req *ascii.Request) string {
	key := req.Key()
	existing, exists := s.lookupLocked(key)

	switch req.Verb {
	case ascii.VerbAdd:
		if exists {
			return ascii.TokenNotStored
		}
	case ascii.VerbReplace:
		if !exists {
			return ascii.TokenNotStored
		}
	case ascii.VerbCas:
		if !exists {
			return ascii.TokenNotFound
		}
		if existing.cas != req.CAS {
			return ascii.TokenExists
		}
	case ascii.VerbAppend, ascii.VerbPrepend:
		if !exists {
			return ascii.TokenNotStored
		}
		var data []byte
		if req.Verb == ascii.VerbAppend {
			data = append(append(data, existing.data...), req.Data...)
		} else {
			data = append(append(data, req.Data...), existing.data...)
		}
		s.nextCAS++
		existing.data = data
		existing.cas = s.nextCAS
		return ascii.TokenStored
	}

	s.storeLocked(key, req.Flags, req.Exptime, req.Data)
	return ascii.TokenStored
}

func (s *Server) retrieval(req *ascii.Request) string {
	var b strings.Builder
	for _, key := range req.Keys {
		s.gets++
		it, ok := s.lookupLocked(key)
		if !ok {
			continue
		}
		s.hits++

		fmt.Fprintf(&b, "%s %s %d %d", ascii.TokenValue, key, it.flags, len(it.data))
		if req.Verb == ascii.VerbGets {
			fmt.Fprintf(&b, " %d", it.cas)
		}
		b.WriteString(ascii.CRLF)
		b.Write(it.data)
		b.WriteString(ascii.CRLF)
	}
	b.WriteString(ascii.TokenEnd + ascii.CRLF)
	return b.String()
}

func (s *Server) delete(req *ascii.Request) string {
	key := req.Key()
	if _, ok := s.lookupLocked(key); !ok {
		return ascii.TokenNotFound
	}
	delete(s.items, key)
	return ascii.TokenDeleted
}

func (s *Server) counter(req *ascii.Request) string {
	if len(req.Args) == 0 {
		return ascii.ErrorGeneric
	}
	delta, err := strconv.ParseUint(req.Args[0], 10, 64)
	if err != nil {
		return "CLIENT_ERROR invalid numeric delta argument"
	}

	it, ok := s.lookupLocked(req.Key())
	if !ok {
		return ascii.TokenNotFound
	}

	current, err := strconv.ParseUint(string(it.data), 10, 64)
	if err != nil {
		return "CLIENT_ERROR cannot increment or decrement non-numeric value"
	}

	if req.Verb == ascii.VerbIncr {
		current += delta // wraps at 2^64 like memcached
	} else if delta > current {
		current = 0
	} else {
		current -= delta
	}

	s.nextCAS++
	it.data = []byte(strconv.FormatUint(current, 10))
	it.cas = s.nextCAS
	return string(it.data)
}

func (s *Server) touch(req *ascii.Request) string {
	if len(req.Args) == 0 {
		return ascii.ErrorGeneric
	}
	exptime, err := strconv.ParseInt(req.Args[0], 10, 64)
	if err != nil {
		return "CLIENT_ERROR invalid exptime argument"
	}

	it, ok := s.lookupLocked(req.Key())
	if !ok {
		return ascii.TokenNotFound
	}
	it.expires = expiry(exptime)
	return ascii.TokenTouched
}

func (s *Server) flush(req *ascii.Request) string {
	var delay int64
	if len(req.Args) > 0 {
		var err error
		delay, err = strconv.ParseInt(req.Args[0], 10, 64)
		if err != nil {
			return "CLIENT_ERROR bad command line format"
		}
	}

	if delay <= 0 {
		clear(s.items)
		return ascii.TokenOK
	}

	at := time.Now().Add(time.Duration(delay) * time.Second)
	for _, it := range s.items {
		if it.expires.IsZero() || it.expires.After(at) {
			it.expires = at
		}
	}
	return ascii.TokenOK
}

func (s *Server) stats(req *ascii.Request) string {
	var stats [][2]string

	group := ""
	if len(req.Args) > 0 {
		group = req.Args[0]
	}

	switch group {
	case "":
		stats = [][2]string{
			{"pid", "1"},
			{"uptime", strconv.Itoa(int(time.Since(s.started).Seconds()))},
			{"version", Version},
			{"curr_items", strconv.Itoa(s.liveLocked())},
			{"curr_connections", strconv.Itoa(len(s.conns))},
			{"total_connections", strconv.Itoa(s.accepted)},
			{"cmd_get", strconv.Itoa(s.gets)},
			{"get_hits", strconv.Itoa(s.hits)},
			{"get_misses", strconv.Itoa(s.gets - s.hits)},
		}

	case ascii.StatsItems:
		if n := s.liveLocked(); n > 0 {
			stats = [][2]string{
				{"items:1:number", strconv.Itoa(n)},
				{"items:1:age", "0"},
				{"items:1:evicted", "0"},
			}
		}

	case ascii.StatsSlabs:
		stats = [][2]string{
			{"1:chunk_size", "96"},
			{"1:used_chunks", strconv.Itoa(s.liveLocked())},
			{"active_slabs", "1"},
		}

	case "settings":
		stats = [][2]string{
			{"maxbytes", "67108864"},
			{"item_size_max", "1048576"},
		}

	case ascii.StatsCachedump:
		return s.cachedump(req.Args[1:])

	default:
		return ascii.ErrorGeneric + ascii.CRLF
	}

	var b strings.Builder
	for _, stat := range stats {
		fmt.Fprintf(&b, "%s %s %s%s", ascii.TokenStat, stat[0], stat[1], ascii.CRLF)
	}
	b.WriteString(ascii.TokenEnd + ascii.CRLF)
	return b.String()
}

func (s *Server) liveLocked() int {
	now := time.Now()
	n := 0
	for _, it := range s.items {
		if !it.expired(now) {
			n++
		}
	}
	return n
}

// cachedump lists slab 1, oldest first. A limit of 0 lists everything.
func (s *Server) cachedump(args []string) string {
	if len(args) < 1 {
		return ascii.ErrorGeneric + ascii.CRLF
	}
	slab, err := strconv.Atoi(args[0])
	if err != nil {
		return "CLIENT_ERROR bad command line format" + ascii.CRLF
	}
	limit := 0
	if len(args) > 1 {
		if limit, err = strconv.Atoi(args[1]); err != nil {
			return "CLIENT_ERROR bad command line format" + ascii.CRLF
		}
	}

	var b strings.Builder
	if slab == 1 {
		now := time.Now()
		keys := make([]string, 0, len(s.items))
		for key, it := range s.items {
			if !it.expired(now) {
				keys = append(keys, key)
			}
		}
		sort.Slice(keys, func(i, j int) bool { return s.items[keys[i]].stored < s.items[keys[j]].stored })
		if limit > 0 && len(keys) > limit {
			keys = keys[:limit]
		}

		for _, key := range keys {
			it := s.items[key]
			var exp int64
			if !it.expires.IsZero() {
				exp = it.expires.Unix()
			} else {
				exp = s.started.Unix()
			}
			fmt.Fprintf(&b, "%s %s [%d b; %d s]%s", ascii.TokenItem, key, len(it.data), exp, ascii.CRLF)
		}
	}
	b.WriteString(ascii.TokenEnd + ascii.CRLF)
	return b.String()
}
