package ascii

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"
)

// Pre-allocated byte slices for comparisons (avoid allocation in hot path)
var (
	crlfBytes         = []byte(CRLF)
	errorGenericBytes = []byte(ErrorGeneric)
	clientErrorPrefix = []byte(ErrorClientPrefix)
	serverErrorPrefix = []byte(ErrorServerPrefix)
	valuePrefix       = []byte(TokenValue + " ")
	endBytes          = []byte(TokenEnd)
)

// Value is one VALUE block of a get/gets reply.
type Value struct {
	Key    string
	Flags  uint32
	CAS    uint64
	HasCAS bool
	Data   []byte
}

// Stat is one "STAT <name> <value>" line.
type Stat struct {
	Name  string
	Value string
}

// ItemInfo is one "ITEM <key> [<size> b; <time> s]" line of a cachedump.
type ItemInfo struct {
	Key  string
	Info string
}

// readSlice reads one raw line including its terminator.
// Falls back to ReadBytes if the line exceeds the buffer size.
func readSlice(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadSlice('\n')
	if err == bufio.ErrBufferFull {
		// The slice points into the reader's buffer, which ReadBytes reuses.
		head := append([]byte(nil), line...)
		var rest []byte
		rest, err = r.ReadBytes('\n')
		line = append(head, rest...)
	}
	if err != nil {
		if err == io.EOF && len(line) == 0 {
			return nil, &ConnectionError{Op: "read", Err: io.EOF}
		}
		if err == io.EOF {
			return nil, &ParseError{Message: "truncated line", Line: string(line), Err: err}
		}
		return nil, &ConnectionError{Op: "read", Err: err}
	}
	return bytes.TrimSuffix(bytes.TrimSuffix(line, []byte{'\n'}), []byte{'\r'}), nil
}

// checkError converts the three error markers into Go errors.
// Returns nil if line is not an error line.
func checkError(line []byte) error {
	if bytes.Equal(line, errorGenericBytes) {
		return &GenericError{Message: ErrorGeneric}
	}
	if msg, ok := cutMarker(line, clientErrorPrefix); ok {
		return &ClientError{Message: msg}
	}
	if msg, ok := cutMarker(line, serverErrorPrefix); ok {
		return &ServerError{Message: msg}
	}
	return nil
}

func cutMarker(line, prefix []byte) (string, bool) {
	if !bytes.HasPrefix(line, prefix) {
		return "", false
	}
	rest := line[len(prefix):]
	if len(rest) == 0 {
		return "", true
	}
	if rest[0] != ' ' {
		return "", false
	}
	return string(rest[1:]), true
}

// ReadLine reads a single reply line and returns it without CRLF.
//
// ERROR, CLIENT_ERROR and SERVER_ERROR lines are returned as
// *GenericError, *ClientError and *ServerError respectively.
// I/O failures are returned as *ConnectionError.
func ReadLine(r *bufio.Reader) (string, error) {
	line, err := readSlice(r)
	if err != nil {
		return "", err
	}
	if err := checkError(line); err != nil {
		return "", err
	}
	return string(line), nil
}

// ReadValues reads VALUE blocks until END.
// Response format:
//
//	VALUE <key> <flags> <bytes> [<cas unique>]\r\n
//	<data block>\r\n
//	...
//	END\r\n
//
// The data block is read by its declared length, so values containing
// "END" or CRLF are returned intact.
func ReadValues(r *bufio.Reader) ([]Value, error) {
	var values []Value

	for {
		line, err := readSlice(r)
		if err != nil {
			return nil, err
		}
		if err := checkError(line); err != nil {
			return nil, err
		}

		if bytes.Equal(line, endBytes) {
			return values, nil
		}

		if !bytes.HasPrefix(line, valuePrefix) {
			return nil, &ParseError{Message: "unexpected line in retrieval reply", Line: string(line)}
		}

		value, size, err := ParseValueHeader(string(line))
		if err != nil {
			return nil, err
		}

		data, err := readDataBlock(r, size)
		if err != nil {
			return nil, err
		}
		value.Data = data

		values = append(values, value)
	}
}

// readDataBlock reads size bytes followed by CRLF.
// The buffer grows with the data actually received rather than the declared
// size, so a bogus header cannot force a huge allocation.
func readDataBlock(r *bufio.Reader, size int) ([]byte, error) {
	if size > MaxValueSize {
		return nil, &ParseError{Message: "data block exceeds maximum value size"}
	}

	var buf bytes.Buffer
	buf.Grow(min(size, preallocLimit) + len(CRLF))
	if _, err := io.CopyN(&buf, r, int64(size+len(CRLF))); err != nil {
		return nil, &ParseError{Message: "failed to read data block", Err: err}
	}

	data := buf.Bytes()
	if !bytes.HasSuffix(data, crlfBytes) {
		return nil, &ParseError{Message: "invalid data block terminator"}
	}
	return data[:size], nil
}

// ParseValueHeader parses "VALUE <key> <flags> <bytes> [<cas unique>]".
// Returns the value without data and the declared data length.
func ParseValueHeader(line string) (Value, int, error) {
	fields := strings.Fields(line)
	if len(fields) < 4 || len(fields) > 5 || fields[0] != TokenValue {
		return Value{}, 0, &ParseError{Message: "malformed VALUE header", Line: line}
	}

	flags, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return Value{}, 0, &ParseError{Message: "invalid flags in VALUE header", Line: line, Err: err}
	}

	size, err := strconv.Atoi(fields[3])
	if err != nil {
		return Value{}, 0, &ParseError{Message: "invalid size in VALUE header", Line: line, Err: err}
	}
	if size < 0 {
		return Value{}, 0, &ParseError{Message: "negative size in VALUE header", Line: line}
	}

	value := Value{Key: fields[1], Flags: uint32(flags)}

	if len(fields) == 5 {
		value.CAS, err = strconv.ParseUint(fields[4], 10, 64)
		if err != nil {
			return Value{}, 0, &ParseError{Message: "invalid cas in VALUE header", Line: line, Err: err}
		}
		value.HasCAS = true
	}

	return value, size, nil
}

// ReadStats reads "STAT <name> <value>" lines until END.
// Values may contain spaces; everything after the name is kept.
func ReadStats(r *bufio.Reader) ([]Stat, error) {
	var stats []Stat

	for {
		line, err := ReadLine(r)
		if err != nil {
			return nil, err
		}
		if line == TokenEnd {
			return stats, nil
		}

		rest, ok := strings.CutPrefix(line, TokenStat+Space)
		if !ok {
			return nil, &ParseError{Message: "unexpected line in stats reply", Line: line}
		}

		name, value, _ := strings.Cut(rest, Space)
		stats = append(stats, Stat{Name: name, Value: value})
	}
}

// ReadItems reads the "ITEM <key> [...]" lines of a cachedump until END.
func ReadItems(r *bufio.Reader) ([]ItemInfo, error) {
	var items []ItemInfo

	for {
		line, err := ReadLine(r)
		if err != nil {
			return nil, err
		}
		if line == TokenEnd {
			return items, nil
		}

		item, err := ParseItemLine(line)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
}

// ParseItemLine parses "ITEM <key> [<size> b; <time> s]".
func ParseItemLine(line string) (ItemInfo, error) {
	rest, ok := strings.CutPrefix(line, TokenItem+Space)
	if !ok {
		return ItemInfo{}, &ParseError{Message: "unexpected line in cachedump reply", Line: line}
	}

	key, info, _ := strings.Cut(rest, Space)
	if key == "" {
		return ItemInfo{}, &ParseError{Message: "empty key in cachedump reply", Line: line}
	}

	return ItemInfo{Key: key, Info: info}, nil
}

// SlabCounts extracts the per-slab item counts from a "stats items" reply.
// Only "items:<slab>:number" entries are used; slabs with zero items are skipped.
// The returned slab ids are in reply order.
func SlabCounts(stats []Stat) ([]int, map[int]int) {
	var order []int
	counts := make(map[int]int)

	for _, stat := range stats {
		parts := strings.Split(stat.Name, ":")
		if len(parts) != 3 || parts[0] != StatsItems || parts[2] != "number" {
			continue
		}

		slab, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(stat.Value))
		if err != nil || n <= 0 {
			continue
		}

		if _, seen := counts[slab]; !seen {
			order = append(order, slab)
		}
		counts[slab] = n
	}

	return order, counts
}

// ParseCounter parses an incr/decr reply line.
// Returns ok=false for NOT_FOUND. Any other non-numeric line is a ParseError.
func ParseCounter(line string) (value uint64, ok bool, err error) {
	if line == TokenNotFound {
		return 0, false, nil
	}

	value, err = strconv.ParseUint(strings.TrimSpace(line), 10, 64)
	if err != nil {
		return 0, false, &ParseError{Message: "unexpected counter reply", Line: line, Err: err}
	}
	return value, true, nil
}

// ParseVersion strips the "VERSION " prefix of a version reply.
func ParseVersion(line string) (string, error) {
	version, ok := strings.CutPrefix(line, TokenVersion+Space)
	if !ok {
		return "", &ParseError{Message: "unexpected version reply", Line: line}
	}
	return version, nil
}
