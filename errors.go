package memcache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/pior/memcache-text/ascii"
	"github.com/pior/memcache-text/codec"
	"github.com/sony/gobreaker/v2"
)

var (
	// ErrNoServers is returned when an operation needs a server and none is registered.
	ErrNoServers = errors.New("memcache: no servers available")

	// ErrServerExists is returned when registering a host:port twice.
	ErrServerExists = errors.New("memcache: server already exists")

	// ErrUnknownServer is returned when a server key does not name a registered server.
	ErrUnknownServer = errors.New("memcache: unknown server")

	// ErrClientClosed is returned by operations on a closed client.
	ErrClientClosed = errors.New("memcache: client closed")
)

// PayloadError is returned when a value cannot be encoded or decoded.
type PayloadError = codec.PayloadError

// InvalidKeyError is returned for keys that cannot be sent on the wire.
type InvalidKeyError = ascii.InvalidKeyError

// ConnectionError wraps a failure to open, write to or read from a server
// connection. A failed dial marks the server as failed until Quit or
// ResetServerList.
type ConnectionError struct {
	Server string
	Op     string // dial, write, flush, read
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("memcache: %s %s: %v", e.Op, e.Server, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ProtocolError is returned when a server answers ERROR, CLIENT_ERROR or
// SERVER_ERROR, or sends a reply that cannot be parsed.
type ProtocolError struct {
	Server  string
	Command string
	Err     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("memcache: %s on %s: %v", e.Command, e.Server, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// OptionError is returned when a known option receives an invalid value.
type OptionError struct {
	Option Option
	Value  any
	Reason string
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("memcache: invalid value %v for option %s: %s", e.Value, e.Option, e.Reason)
}

// ResultCodeOf maps an error returned by the client to its result code.
func ResultCodeOf(err error) ResultCode {
	if err == nil {
		return ResSuccess
	}

	var (
		invalidKey *ascii.InvalidKeyError
		payloadErr *codec.PayloadError
		optionErr  *OptionError
		clientErr  *ascii.ClientError
		serverErr  *ascii.ServerError
		protoErr   *ProtocolError
		connErr    *ConnectionError
		dnsErr     *net.DNSError
	)

	switch {
	case errors.Is(err, ErrNoServers):
		return ResNoServers
	case errors.As(err, &invalidKey):
		return ResBadKeyProvided
	case errors.As(err, &payloadErr):
		return ResPayloadFailure
	case errors.As(err, &optionErr):
		return ResInvalidArguments
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return ResTimeout
	case errors.As(err, &clientErr):
		return ResClientError
	case errors.As(err, &serverErr):
		return ResServerError
	case errors.As(err, &protoErr):
		return ResProtocolError
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return ResServerMarkedDead
	case errors.As(err, &dnsErr):
		return ResHostLookupFailure
	case errors.As(err, &connErr):
		switch connErr.Op {
		case "write", "flush":
			return ResWriteFailure
		case "read":
			return ResUnknownReadFailure
		}
		return ResConnectionFailure
	}

	return ResFailure
}
