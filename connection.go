package memcache

import (
	"bufio"
	"context"
	"errors"
	"net"
	"time"

	"github.com/pior/memcache-text/ascii"
	"github.com/pior/memcache-text/internal/coarsetime"
)

// Connection is a single text protocol connection to one server.
// It is not safe for concurrent use; the server pool hands it to one
// caller at a time.
type Connection struct {
	conn   net.Conn
	Reader *bufio.Reader
	Writer *bufio.Writer

	// timeout applies to a request when the context has no deadline.
	timeout time.Duration
}

// NewConnection wraps an established net.Conn.
func NewConnection(conn net.Conn, timeout time.Duration) *Connection {
	return &Connection{
		conn:    conn,
		Reader:  bufio.NewReader(conn),
		Writer:  bufio.NewWriter(conn),
		timeout: timeout,
	}
}

// Exchange writes req and lets read consume the reply.
// The connection deadline is taken from ctx, or from the connection timeout.
func (c *Connection) Exchange(ctx context.Context, req *ascii.Request, read func(r *bufio.Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline, ok := ctx.Deadline()
	if !ok && c.timeout > 0 {
		deadline = coarsetime.Deadline(c.timeout)
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return &ascii.ConnectionError{Op: "deadline", Err: err}
	}

	if err := ascii.WriteRequest(c.Writer, req); err != nil {
		return err
	}

	return read(c.Reader)
}

// Close closes the underlying connection.
func (c *Connection) Close() error {
	err := c.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
