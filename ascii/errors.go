package ascii

import (
	"errors"
	"fmt"
)

// ClientError is a CLIENT_ERROR reply: the server rejected the command line
// or its data block (bad chunk, key too long, incr on a non-number). The
// server may have skipped part of the request, so the connection is closed.
type ClientError struct {
	Message string
}

func (e *ClientError) Error() string {
	return "CLIENT_ERROR: " + e.Message
}

func (e *ClientError) ShouldCloseConnection() bool {
	return true
}

// ServerError is a SERVER_ERROR reply, such as "out of memory storing
// object". The reply is complete and the connection stays usable.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "SERVER_ERROR: " + e.Message
}

func (e *ServerError) ShouldCloseConnection() bool {
	return false
}

// GenericError is a bare ERROR reply, sent for unknown commands.
type GenericError struct {
	Message string
}

func (e *GenericError) Error() string {
	return e.Message
}

func (e *GenericError) ShouldCloseConnection() bool {
	return true
}

// InvalidKeyError rejects a key before anything is written.
type InvalidKeyError struct {
	Key     string
	Message string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("invalid key %q: %s", e.Key, e.Message)
}

func (e *InvalidKeyError) ShouldCloseConnection() bool {
	return false
}

// ParseError is a reply the client could not make sense of: a malformed
// VALUE header, a data block without its CRLF, or a status line the command
// does not expect. The rest of the stream cannot be trusted.
type ParseError struct {
	Message string
	Line    string
	Err     error
}

func (e *ParseError) Error() string {
	msg := "parse error: " + e.Message
	if e.Line != "" {
		msg += fmt.Sprintf(" (line %q)", e.Line)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) ShouldCloseConnection() bool {
	return true
}

// ConnectionError is an I/O failure while talking to the server.
type ConnectionError struct {
	Op  string // read, write or flush
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func (e *ConnectionError) ShouldCloseConnection() bool {
	return true
}

// ErrorWithConnectionState is implemented by every error of this package.
type ErrorWithConnectionState interface {
	error
	ShouldCloseConnection() bool
}

// ShouldCloseConnection reports whether err requires closing the connection.
//
// Returns true for ClientError, GenericError, ParseError, ConnectionError and
// unknown error types. Returns false for ServerError, InvalidKeyError and nil.
func ShouldCloseConnection(err error) bool {
	if err == nil {
		return false
	}

	var e ErrorWithConnectionState
	if errors.As(err, &e) {
		return e.ShouldCloseConnection()
	}

	// Anything else, such as a context error mid-reply, leaves the stream unknown.
	return true
}

// IsProtocolError reports whether err is one of the three server error
// markers (ERROR, CLIENT_ERROR, SERVER_ERROR).
func IsProtocolError(err error) bool {
	var (
		ce *ClientError
		se *ServerError
		ge *GenericError
	)
	return errors.As(err, &ce) || errors.As(err, &se) || errors.As(err, &ge)
}
