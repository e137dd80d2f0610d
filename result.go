package memcache

import (
	"sync"

	"github.com/pior/memcache-text/codec"
)

// Result is the outcome of one operation: a result code and a message.
// Domain outcomes such as a missing key or a failed add are reported here,
// not as errors.
type Result struct {
	Code    ResultCode
	Message string
}

// OK reports whether the operation succeeded.
func (r Result) OK() bool {
	return r.Code == ResSuccess
}

func (r Result) String() string {
	if r.Message == "" {
		return r.Code.String()
	}
	return r.Code.String() + ": " + r.Message
}

func newResult(code ResultCode, message string) Result {
	return Result{Code: code, Message: message}
}

func errorResult(err error) Result {
	return Result{Code: ResultCodeOf(err), Message: err.Error()}
}

// Item is a value read from the cache.
type Item struct {
	Result

	Key   string
	Value codec.Value

	// UserFlags are the caller-owned high 16 bits of the flags word.
	UserFlags uint16

	// CAS is set when the item was fetched with a CAS token.
	CAS    uint64
	HasCAS bool
}

// Found reports whether the key was present.
func (i Item) Found() bool {
	return i.Code == ResSuccess
}

// Counter is the outcome of an increment or decrement.
type Counter struct {
	Result

	Value uint64
}

// resultState holds the last result of a client.
type resultState struct {
	mu   sync.RWMutex
	last Result
}

func (s *resultState) set(r Result) Result {
	s.mu.Lock()
	s.last = r
	s.mu.Unlock()
	return r
}

func (s *resultState) get() Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}
