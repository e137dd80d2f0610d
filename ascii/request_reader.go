package ascii

import (
	"bufio"
	"errors"
	"strconv"
	"strings"
)

// ReadRequest reads and parses one command from r.
// It is the server-side counterpart of WriteRequest and is used by test
// servers and protocol tools.
//
// Unknown verbs are returned as-is with all tokens in Args so the caller
// can answer with ERROR.
func ReadRequest(r *bufio.Reader) (*Request, error) {
	raw, err := readSlice(r)
	if err != nil {
		return nil, err
	}
	line := string(raw)

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, &ParseError{Message: "empty command line"}
	}

	req := &Request{Verb: Verb(fields[0])}
	args := fields[1:]

	switch {
	case req.Verb.IsStorage():
		return readStorageRequest(r, req, args, line)

	case req.Verb == VerbGet || req.Verb == VerbGets:
		if len(args) == 0 {
			return nil, &ParseError{Message: "retrieval command without key", Line: line}
		}
		req.Keys = args

	case req.Verb == VerbDelete || req.Verb == VerbIncr || req.Verb == VerbDecr || req.Verb == VerbTouch:
		if len(args) == 0 {
			return nil, &ParseError{Message: "command without key", Line: line}
		}
		req.Keys = args[:1]
		req.Args = args[1:]

	default:
		req.Args = args
	}

	return req, nil
}

func readStorageRequest(r *bufio.Reader, req *Request, args []string, line string) (*Request, error) {
	want := 4
	if req.Verb == VerbCas {
		want = 5
	}
	if len(args) < want {
		return nil, &ParseError{Message: "storage command missing arguments", Line: line}
	}

	flags, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return nil, &ParseError{Message: "invalid flags", Line: line, Err: err}
	}
	exptime, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return nil, &ParseError{Message: "invalid exptime", Line: line, Err: err}
	}
	size, err := strconv.Atoi(args[3])
	if err != nil || size < 0 {
		return nil, &ParseError{Message: "invalid byte count", Line: line, Err: err}
	}

	req.Keys = args[:1]
	req.Flags = uint32(flags)
	req.Exptime = exptime

	if req.Verb == VerbCas {
		req.CAS, err = strconv.ParseUint(args[4], 10, 64)
		if err != nil {
			return nil, &ParseError{Message: "invalid cas unique", Line: line, Err: err}
		}
	}
	req.Args = args[want:]

	data, err := readDataBlock(r, size)
	if err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) && parseErr.Err == nil {
			return nil, &ClientError{Message: "bad data chunk"}
		}
		return nil, err
	}
	req.Data = data

	return req, nil
}
