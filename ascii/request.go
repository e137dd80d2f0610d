package ascii

import (
	"strconv"
)

// Request represents a text protocol command.
// This is a low-level container for request data without I/O logic.
// Fields map directly to protocol elements.
type Request struct {
	// Verb is the command name: set, get, delete, incr, stats, ...
	Verb Verb

	// Keys holds the item keys. Storage, delete, counter and touch commands
	// use exactly one key; get and gets accept many.
	Keys []string

	// Flags, Exptime and CAS are only written for storage commands.
	// CAS is only written for the cas verb.
	Flags   uint32
	Exptime int64
	CAS     uint64

	// Args are extra tokens written after the keys (offset, exptime, delay,
	// stats group arguments).
	Args []string

	// Data is the value block for storage commands.
	// The byte count on the wire is derived from len(Data).
	Data []byte
}

// NewStorageRequest creates a set/add/replace/append/prepend request.
//
//	set <key> <flags> <exptime> <bytes>\r\n<data>\r\n
func NewStorageRequest(verb Verb, key string, flags uint32, exptime int64, data []byte) *Request {
	return &Request{
		Verb:    verb,
		Keys:    []string{key},
		Flags:   flags,
		Exptime: exptime,
		Data:    data,
	}
}

// NewCasRequest creates a cas request.
//
//	cas <key> <flags> <exptime> <bytes> <cas unique>\r\n<data>\r\n
func NewCasRequest(key string, flags uint32, exptime int64, cas uint64, data []byte) *Request {
	return &Request{
		Verb:    VerbCas,
		Keys:    []string{key},
		Flags:   flags,
		Exptime: exptime,
		CAS:     cas,
		Data:    data,
	}
}

// NewRetrievalRequest creates a get or gets request for one or more keys.
//
//	get <key>*\r\n
func NewRetrievalRequest(verb Verb, keys ...string) *Request {
	return &Request{Verb: verb, Keys: keys}
}

// NewKeyRequest creates a single-key command with trailing arguments
// (delete, incr, decr, touch).
//
//	incr <key> <value>\r\n
//	touch <key> <exptime>\r\n
func NewKeyRequest(verb Verb, key string, args ...string) *Request {
	return &Request{Verb: verb, Keys: []string{key}, Args: args}
}

// NewRequest creates a keyless command (flush_all, stats, version).
//
//	stats cachedump 1 100\r\n
func NewRequest(verb Verb, args ...string) *Request {
	return &Request{Verb: verb, Args: args}
}

// Key returns the first key, or "" for keyless commands.
func (r *Request) Key() string {
	if len(r.Keys) == 0 {
		return ""
	}
	return r.Keys[0]
}

// AppendLine appends the command line, including the trailing CRLF, to buf.
func (r *Request) AppendLine(buf []byte) []byte {
	buf = append(buf, r.Verb...)
	for _, key := range r.Keys {
		buf = append(buf, ' ')
		buf = append(buf, key...)
	}

	if r.Verb.IsStorage() {
		buf = append(buf, ' ')
		buf = strconv.AppendUint(buf, uint64(r.Flags), 10)
		buf = append(buf, ' ')
		buf = strconv.AppendInt(buf, r.Exptime, 10)
		buf = append(buf, ' ')
		buf = strconv.AppendInt(buf, int64(len(r.Data)), 10)
		if r.Verb == VerbCas {
			buf = append(buf, ' ')
			buf = strconv.AppendUint(buf, r.CAS, 10)
		}
	}

	for _, arg := range r.Args {
		buf = append(buf, ' ')
		buf = append(buf, arg...)
	}

	return append(buf, CRLF...)
}

// String returns the command line without CRLF. Intended for logs.
func (r *Request) String() string {
	line := r.AppendLine(nil)
	return string(line[:len(line)-len(CRLF)])
}
