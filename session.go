package memcache

import (
	"fmt"
	"math"
	"sync"

	"github.com/pior/memcache-text/codec"
	"github.com/puzpuzpuz/xsync/v3"
)

// SessionOptions is the typed view of a session's recognized options.
type SessionOptions struct {
	Codec     codec.Settings
	PrefixKey string
}

// DefaultSessionOptions returns the options a new session starts with.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{Codec: codec.DefaultSettings()}
}

// session is an option set shared by every client using the same id.
type session struct {
	mu    sync.RWMutex
	opts  SessionOptions
	extra map[Option]any
}

func newSession() *session {
	return &session{opts: DefaultSessionOptions()}
}

func (s *session) snapshot() SessionOptions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

func (s *session) get(opt Option) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch opt {
	case OptCompression:
		return s.opts.Codec.Compression, true
	case OptPrefixKey:
		return s.opts.PrefixKey, true
	case OptSerializer:
		return s.opts.Codec.Serializer, true
	case OptCompressionType:
		return s.opts.Codec.CompressionType, true
	case OptCompressionThreshold:
		return s.opts.Codec.CompressionThreshold, true
	case OptCompressionFactor:
		return s.opts.Codec.CompressionFactor, true
	}

	v, ok := s.extra[opt]
	return v, ok
}

// set validates and applies one option. Unknown options are stored as-is.
func (s *session) set(opt Option, value any) error {
	invalid := func(reason string) error {
		return &OptionError{Option: opt, Value: value, Reason: reason}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch opt {
	case OptCompression:
		b, ok := value.(bool)
		if !ok {
			return invalid("expected bool")
		}
		s.opts.Codec.Compression = b

	case OptPrefixKey:
		prefix, ok := value.(string)
		if !ok {
			return invalid("expected string")
		}
		if err := validatePrefix(prefix); err != nil {
			return invalid(err.Error())
		}
		s.opts.PrefixKey = prefix

	case OptSerializer:
		n, ok := toInt(value)
		kind := codec.SerializerKind(n)
		if !ok || n < 0 || n > math.MaxUint8 || !kind.Valid() {
			return invalid("unknown serializer")
		}
		s.opts.Codec.Serializer = kind

	case OptCompressionType:
		n, ok := toInt(value)
		c := codec.Compression(n)
		if !ok || n < 0 || n > math.MaxUint8 || !c.Valid() {
			return invalid("unknown compression type")
		}
		s.opts.Codec.CompressionType = c

	case OptCompressionThreshold:
		n, ok := toInt(value)
		if !ok || n < 0 || n > math.MaxInt32 {
			return invalid("expected a non-negative integer")
		}
		s.opts.Codec.CompressionThreshold = int(n)

	case OptCompressionFactor:
		f, ok := toFloat(value)
		if !ok || math.IsNaN(f) || f < 1 {
			return invalid("expected a number >= 1")
		}
		s.opts.Codec.CompressionFactor = f

	default:
		if s.extra == nil {
			s.extra = make(map[Option]any)
		}
		s.extra[opt] = value
	}

	return nil
}

func validatePrefix(prefix string) error {
	if len(prefix) > MaxPrefixKeyLength {
		return fmt.Errorf("longer than %d bytes", MaxPrefixKeyLength)
	}
	for i := 0; i < len(prefix); i++ {
		if c := prefix[i]; c <= ' ' || c == 0x7f {
			return fmt.Errorf("contains whitespace or control characters")
		}
	}
	return nil
}

func toInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return int64(x), x <= math.MaxInt64
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), x <= math.MaxInt64
	case codec.SerializerKind:
		return int64(x), true
	case codec.Compression:
		return int64(x), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}
	if n, ok := toInt(v); ok {
		return float64(n), true
	}
	return 0, false
}

// Registry holds option sets keyed by session id.
//
// Clients created with the same PersistentID and Registry share one option
// set: an option changed through one of them is seen by all. Clients
// without a PersistentID keep a private option set outside any registry.
type Registry struct {
	sessions *xsync.MapOf[string, *session]
}

// DefaultRegistry holds the sessions of clients created without
// Config.Registry. It lives for the whole process.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: xsync.NewMapOf[string, *session]()}
}

// acquire returns the session for id, creating it with default options on
// first use. created is true when this call created it.
func (r *Registry) acquire(id string) (s *session, created bool) {
	s, loaded := r.sessions.LoadOrCompute(id, newSession)
	return s, !loaded
}

// Options returns a snapshot of the options of session id.
func (r *Registry) Options(id string) (SessionOptions, bool) {
	s, ok := r.sessions.Load(id)
	if !ok {
		return SessionOptions{}, false
	}
	return s.snapshot(), true
}

// Forget drops session id. Clients already attached keep their option set.
func (r *Registry) Forget(id string) {
	r.sessions.Delete(id)
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	return r.sessions.Size()
}

// Reset drops every session.
func (r *Registry) Reset() {
	r.sessions.Clear()
}
