package memcache

import (
	"bufio"
	"context"
	"errors"

	"github.com/pior/memcache-text/ascii"
	"go.uber.org/zap"
)

// signalTable maps the status line of a command to a result code.
type signalTable map[string]ResultCode

var (
	storeSignals = signalTable{
		ascii.TokenStored:    ResSuccess,
		ascii.TokenNotStored: ResNotStored,
		ascii.TokenExists:    ResDataExists,
		ascii.TokenNotFound:  ResNotFound,
	}

	deleteSignals = signalTable{
		ascii.TokenDeleted:  ResSuccess,
		ascii.TokenNotFound: ResNotFound,
	}

	touchSignals = signalTable{
		ascii.TokenTouched:  ResSuccess,
		ascii.TokenNotFound: ResNotFound,
	}

	flushSignals = signalTable{
		ascii.TokenOK: ResSuccess,
	}
)

// classify looks up line in the table. A line outside the table is a
// protocol error.
func (t signalTable) classify(line string) (ResultCode, error) {
	if code, ok := t[line]; ok {
		return code, nil
	}
	return ResFailure, &ascii.ParseError{Message: "unexpected reply", Line: line}
}

// domainResult builds the result of a table-driven reply.
func domainResult(code ResultCode, line string) Result {
	if code == ResSuccess {
		return Result{Code: code}
	}
	return Result{Code: code, Message: line}
}

// stream sends req to the server and hands the reply reader to read.
// Errors are wrapped with the server and command they came from.
func (c *Client) stream(ctx context.Context, sp *ServerPool, req *ascii.Request, read func(r *bufio.Reader) error) error {
	err := sp.Execute(ctx, req, read)
	if err == nil {
		return nil
	}
	return c.wrapError(sp, req, err)
}

// query sends req and returns its single status line.
func (c *Client) query(ctx context.Context, sp *ServerPool, req *ascii.Request) (string, error) {
	var line string
	err := c.stream(ctx, sp, req, func(r *bufio.Reader) error {
		var err error
		line, err = ascii.ReadLine(r)
		return err
	})
	return line, err
}

// command sends req and classifies its status line against table.
func (c *Client) command(ctx context.Context, sp *ServerPool, req *ascii.Request, table signalTable) (Result, error) {
	line, err := c.query(ctx, sp, req)
	if err != nil {
		return Result{}, err
	}

	code, err := table.classify(line)
	if err != nil {
		return Result{}, c.wrapError(sp, req, err)
	}
	return domainResult(code, line), nil
}

func (c *Client) wrapError(sp *ServerPool, req *ascii.Request, err error) error {
	server := sp.Server().Key()
	command := string(req.Verb)

	var (
		asciiConnErr *ascii.ConnectionError
		connErr      *ConnectionError
		protoErr     *ProtocolError
		parseErr     *ascii.ParseError
	)

	switch {
	case errors.As(err, &connErr), errors.As(err, &protoErr):
		return err

	case errors.As(err, &asciiConnErr):
		c.logger.Warn("connection error",
			zap.String("server", server),
			zap.String("command", command),
			zap.Error(err))
		return &ConnectionError{Server: server, Op: asciiConnErr.Op, Err: asciiConnErr.Err}

	case ascii.IsProtocolError(err), errors.As(err, &parseErr):
		c.logger.Warn("protocol error",
			zap.String("server", server),
			zap.String("command", command),
			zap.Error(err))
		return &ProtocolError{Server: server, Command: command, Err: err}
	}

	return err
}
