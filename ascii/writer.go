package ascii

import (
	"bufio"
	"io"

	"github.com/pior/memcache-text/internal/bufpool"
)

// Typical command lines are well under 300 bytes; buffers grown by large
// unbuffered storage requests are not retained past 64KB.
var buffers = bufpool.New(512, 64<<10)

// ValidateKey checks if a key is valid for the text protocol.
// Keys must be 1-250 bytes and contain no whitespace or control characters.
func ValidateKey(key string) error {
	if len(key) < MinKeyLength {
		return &InvalidKeyError{Key: key, Message: "key is empty"}
	}

	if len(key) > MaxKeyLength {
		return &InvalidKeyError{Key: key, Message: "key exceeds maximum length of 250 bytes"}
	}

	for i := 0; i < len(key); i++ {
		if c := key[i]; c <= ' ' || c == 0x7f {
			return &InvalidKeyError{Key: key, Message: "key contains whitespace or control characters"}
		}
	}

	return nil
}

// WriteRequest serializes a Request to wire format and writes it to w.
//
// Keys are validated before anything is written, so an InvalidKeyError
// leaves the connection untouched.
//
// When w is a *bufio.Writer it is flushed before returning.
func WriteRequest(w io.Writer, req *Request) error {
	for _, key := range req.Keys {
		if err := ValidateKey(key); err != nil {
			return err
		}
	}

	if bw, ok := w.(*bufio.Writer); ok {
		return writeRequestBuffered(bw, req)
	}

	return writeRequestUnbuffered(w, req)
}

// writeRequestBuffered writes using bufio.Writer.
func writeRequestBuffered(bw *bufio.Writer, req *Request) error {
	buf := buffers.Get()
	defer buffers.Put(buf)

	buf.Write(req.AppendLine(buf.AvailableBuffer()))
	if _, err := bw.Write(buf.Bytes()); err != nil {
		return &ConnectionError{Op: "write", Err: err}
	}

	if req.Verb.IsStorage() {
		if _, err := bw.Write(req.Data); err != nil {
			return &ConnectionError{Op: "write", Err: err}
		}
		if _, err := bw.WriteString(CRLF); err != nil {
			return &ConnectionError{Op: "write", Err: err}
		}
	}

	if err := bw.Flush(); err != nil {
		return &ConnectionError{Op: "flush", Err: err}
	}
	return nil
}

// writeRequestUnbuffered writes the whole request in a single Write call.
func writeRequestUnbuffered(w io.Writer, req *Request) error {
	buf := buffers.Get()
	defer buffers.Put(buf)

	buf.Write(req.AppendLine(buf.AvailableBuffer()))
	if req.Verb.IsStorage() {
		buf.Write(req.Data)
		buf.WriteString(CRLF)
	}

	if _, err := w.Write(buf.Bytes()); err != nil {
		return &ConnectionError{Op: "write", Err: err}
	}
	return nil
}
