package ascii

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"
)

func reader(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

// Test request serialization

func TestWriteRequest(t *testing.T) {
	tests := []struct {
		name     string
		req      *Request
		expected string
	}{
		{
			name:     "set",
			req:      NewStorageRequest(VerbSet, "mykey", 0, 0, []byte("hello")),
			expected: "set mykey 0 0 5\r\nhello\r\n",
		},
		{
			name:     "add with flags and exptime",
			req:      NewStorageRequest(VerbAdd, "mykey", 65537, 60, []byte("hi")),
			expected: "add mykey 65537 60 2\r\nhi\r\n",
		},
		{
			name:     "empty value",
			req:      NewStorageRequest(VerbSet, "mykey", 3, 0, nil),
			expected: "set mykey 3 0 0\r\n\r\n",
		},
		{
			name:     "value with embedded CRLF",
			req:      NewStorageRequest(VerbSet, "k", 0, 0, []byte("a\r\nEND\r\n")),
			expected: "set k 0 0 8\r\na\r\nEND\r\n\r\n",
		},
		{
			name:     "cas",
			req:      NewCasRequest("mykey", 0, 0, 12345, []byte("v")),
			expected: "cas mykey 0 0 1 12345\r\nv\r\n",
		},
		{
			name:     "get many",
			req:      NewRetrievalRequest(VerbGet, "a", "b", "c"),
			expected: "get a b c\r\n",
		},
		{
			name:     "gets",
			req:      NewRetrievalRequest(VerbGets, "a"),
			expected: "gets a\r\n",
		},
		{
			name:     "incr",
			req:      NewKeyRequest(VerbIncr, "counter", "5"),
			expected: "incr counter 5\r\n",
		},
		{
			name:     "delete",
			req:      NewKeyRequest(VerbDelete, "mykey"),
			expected: "delete mykey\r\n",
		},
		{
			name:     "touch",
			req:      NewKeyRequest(VerbTouch, "mykey", "30"),
			expected: "touch mykey 30\r\n",
		},
		{
			name:     "flush_all with delay",
			req:      NewRequest(VerbFlushAll, "10"),
			expected: "flush_all 10\r\n",
		},
		{
			name:     "stats cachedump",
			req:      NewRequest(VerbStats, StatsCachedump, "1", "100"),
			expected: "stats cachedump 1 100\r\n",
		},
		{
			name:     "version",
			req:      NewRequest(VerbVersion),
			expected: "version\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteRequest(&buf, tt.req); err != nil {
				t.Fatalf("WriteRequest failed: %v", err)
			}
			if got := buf.String(); got != tt.expected {
				t.Errorf("WriteRequest() = %q, want %q", got, tt.expected)
			}

			var bbuf bytes.Buffer
			bw := bufio.NewWriter(&bbuf)
			if err := WriteRequest(bw, tt.req); err != nil {
				t.Fatalf("WriteRequest (buffered) failed: %v", err)
			}
			if got := bbuf.String(); got != tt.expected {
				t.Errorf("WriteRequest (buffered) = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestWriteRequestInvalidKey(t *testing.T) {
	keys := []string{"", strings.Repeat("k", 251), "a b", "a\nb", "a\x00b", "tab\tkey"}

	for _, key := range keys {
		var buf bytes.Buffer
		err := WriteRequest(&buf, NewRetrievalRequest(VerbGet, key))

		var invalid *InvalidKeyError
		if !errors.As(err, &invalid) {
			t.Fatalf("key %q: expected InvalidKeyError, got %v", key, err)
		}
		if buf.Len() != 0 {
			t.Errorf("key %q: wrote %q before failing", key, buf.String())
		}
		if ShouldCloseConnection(err) {
			t.Errorf("key %q: invalid key must not close the connection", key)
		}
	}
}

func TestValidateKey(t *testing.T) {
	if err := ValidateKey(strings.Repeat("k", 250)); err != nil {
		t.Errorf("250 byte key rejected: %v", err)
	}
	if err := ValidateKey("user:42/profile"); err != nil {
		t.Errorf("valid key rejected: %v", err)
	}
}

// Test reply parsing

func TestReadLine(t *testing.T) {
	line, err := ReadLine(reader("STORED\r\n"))
	if err != nil || line != TokenStored {
		t.Fatalf("ReadLine() = %q, %v", line, err)
	}

	_, err = ReadLine(reader(""))
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError on EOF, got %v", err)
	}
}

func TestReadLineProtocolErrors(t *testing.T) {
	tests := []struct {
		input       string
		check       func(error) bool
		shouldClose bool
	}{
		{
			input:       "ERROR\r\n",
			check:       func(err error) bool { var e *GenericError; return errors.As(err, &e) },
			shouldClose: true,
		},
		{
			input: "CLIENT_ERROR bad data chunk\r\n",
			check: func(err error) bool {
				var e *ClientError
				return errors.As(err, &e) && e.Message == "bad data chunk"
			},
			shouldClose: true,
		},
		{
			input: "SERVER_ERROR out of memory storing object\r\n",
			check: func(err error) bool {
				var e *ServerError
				return errors.As(err, &e) && e.Message == "out of memory storing object"
			},
			shouldClose: false,
		},
	}

	for _, tt := range tests {
		_, err := ReadLine(reader(tt.input))
		if !tt.check(err) {
			t.Errorf("%q: unexpected error %v", tt.input, err)
		}
		if !IsProtocolError(err) {
			t.Errorf("%q: IsProtocolError() = false", tt.input)
		}
		if got := ShouldCloseConnection(err); got != tt.shouldClose {
			t.Errorf("%q: ShouldCloseConnection() = %v, want %v", tt.input, got, tt.shouldClose)
		}
	}
}

func TestReadValues(t *testing.T) {
	input := "VALUE a 0 5\r\nhello\r\n" +
		"VALUE b 65536 3 99\r\nEND\r\n" +
		"VALUE c 1 7\r\nx\r\ny\r\nz\r\n" +
		"END\r\n"

	values, err := ReadValues(reader(input))
	if err != nil {
		t.Fatalf("ReadValues failed: %v", err)
	}
	if len(values) != 3 {
		t.Fatalf("expected 3 values, got %d", len(values))
	}

	if values[0].Key != "a" || string(values[0].Data) != "hello" || values[0].HasCAS {
		t.Errorf("unexpected first value: %+v", values[0])
	}
	if values[1].Key != "b" || string(values[1].Data) != "END" || values[1].Flags != 65536 || values[1].CAS != 99 || !values[1].HasCAS {
		t.Errorf("unexpected second value: %+v", values[1])
	}
	if string(values[2].Data) != "x\r\ny\r\nz" {
		t.Errorf("unexpected third value: %q", values[2].Data)
	}
}

func TestReadValuesMiss(t *testing.T) {
	values, err := ReadValues(reader("END\r\n"))
	if err != nil {
		t.Fatalf("ReadValues failed: %v", err)
	}
	if len(values) != 0 {
		t.Errorf("expected no values, got %d", len(values))
	}
}

func TestReadValuesMalformed(t *testing.T) {
	inputs := []string{
		"VALUE a 0\r\n",
		"VALUE a x 5\r\nhello\r\nEND\r\n",
		"VALUE a 0 -1\r\n",
		"VALUE a 0 5\r\nhelloXX",
		"VALUE a 0 5\r\nhel",
		"STORED\r\n",
	}

	for _, input := range inputs {
		_, err := ReadValues(reader(input))
		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			t.Errorf("%q: expected ParseError, got %v", input, err)
		}
	}
}

func TestReadStats(t *testing.T) {
	input := "STAT pid 1234\r\nSTAT version 1.6.21\r\nSTAT rusage_user 0.1 extra\r\nEND\r\n"

	stats, err := ReadStats(reader(input))
	if err != nil {
		t.Fatalf("ReadStats failed: %v", err)
	}
	if len(stats) != 3 {
		t.Fatalf("expected 3 stats, got %d", len(stats))
	}
	if stats[1] != (Stat{Name: "version", Value: "1.6.21"}) {
		t.Errorf("unexpected stat: %+v", stats[1])
	}
	if stats[2].Value != "0.1 extra" {
		t.Errorf("unexpected value: %q", stats[2].Value)
	}
}

func TestReadLinesLongerThanBuffer(t *testing.T) {
	long := strings.Repeat("x", 5000)

	stats, err := ReadStats(bufio.NewReaderSize(strings.NewReader("STAT big "+long+"\r\nEND\r\n"), 16))
	if err != nil {
		t.Fatalf("ReadStats failed: %v", err)
	}
	if len(stats) != 1 || stats[0].Name != "big" || stats[0].Value != long {
		t.Fatalf("unexpected stats: %d entries", len(stats))
	}

	_, err = ReadLine(bufio.NewReader(strings.NewReader("SERVER_ERROR " + long + "\r\n")))
	var serverErr *ServerError
	if !errors.As(err, &serverErr) || serverErr.Message != long {
		t.Fatalf("expected ServerError with the full message, got %T", err)
	}
}

func TestSlabCounts(t *testing.T) {
	stats := []Stat{
		{Name: "items:3:number", Value: "2"},
		{Name: "items:3:age", Value: "100"},
		{Name: "items:1:number", Value: "5"},
		{Name: "items:7:number", Value: "0"},
		{Name: "curr_items", Value: "7"},
	}

	order, counts := SlabCounts(stats)
	if len(order) != 2 || order[0] != 3 || order[1] != 1 {
		t.Fatalf("unexpected slab order: %v", order)
	}
	if counts[3] != 2 || counts[1] != 5 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestReadItems(t *testing.T) {
	input := "ITEM foo [5 b; 0 s]\r\nITEM bar [1 b; 1700000000 s]\r\nEND\r\n"

	items, err := ReadItems(reader(input))
	if err != nil {
		t.Fatalf("ReadItems failed: %v", err)
	}
	if len(items) != 2 || items[0].Key != "foo" || items[1].Key != "bar" {
		t.Fatalf("unexpected items: %+v", items)
	}
	if items[0].Info != "[5 b; 0 s]" {
		t.Errorf("unexpected info: %q", items[0].Info)
	}
}

func TestParseCounter(t *testing.T) {
	v, ok, err := ParseCounter("42")
	if err != nil || !ok || v != 42 {
		t.Errorf("ParseCounter(42) = %d, %v, %v", v, ok, err)
	}

	_, ok, err = ParseCounter("NOT_FOUND")
	if err != nil || ok {
		t.Errorf("ParseCounter(NOT_FOUND) = %v, %v", ok, err)
	}

	_, _, err = ParseCounter("STORED")
	if err == nil {
		t.Error("expected error for STORED")
	}
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("VERSION 1.6.21")
	if err != nil || v != "1.6.21" {
		t.Errorf("ParseVersion() = %q, %v", v, err)
	}
	if _, err := ParseVersion("OK"); err == nil {
		t.Error("expected error for OK")
	}
}

// Test server-side parsing

func TestReadRequestRoundTrip(t *testing.T) {
	reqs := []*Request{
		NewStorageRequest(VerbSet, "a", 7, 60, []byte("x\r\ny")),
		NewCasRequest("b", 0, 0, 77, []byte("v")),
		NewRetrievalRequest(VerbGets, "a", "b"),
		NewKeyRequest(VerbDecr, "c", "3"),
		NewRequest(VerbStats, StatsItems),
	}

	var buf bytes.Buffer
	for _, req := range reqs {
		if err := WriteRequest(&buf, req); err != nil {
			t.Fatalf("WriteRequest failed: %v", err)
		}
	}

	r := bufio.NewReader(&buf)
	for _, want := range reqs {
		got, err := ReadRequest(r)
		if err != nil {
			t.Fatalf("ReadRequest failed: %v", err)
		}
		if got.String() != want.String() || !bytes.Equal(got.Data, want.Data) {
			t.Errorf("ReadRequest() = %q %q, want %q %q", got, got.Data, want, want.Data)
		}
	}
}

func TestReadRequestBadChunk(t *testing.T) {
	_, err := ReadRequest(reader("set a 0 0 2\r\nabcd\r\n"))
	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("expected ClientError, got %v", err)
	}
}
