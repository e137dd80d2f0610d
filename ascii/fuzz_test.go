package ascii

import (
	"bufio"
	"bytes"
	"testing"
)

// FuzzReadValues fuzzes the retrieval reply parser to find crashes and panics.
// Run with: go test -fuzz='^FuzzReadValues$' -fuzztime=60s ./ascii
func FuzzReadValues(f *testing.F) {
	f.Add([]byte("END\r\n"))
	f.Add([]byte("VALUE a 0 5\r\nhello\r\nEND\r\n"))
	f.Add([]byte("VALUE a 0 3 12\r\nEND\r\nEND\r\n"))
	f.Add([]byte("VALUE a 0 0\r\n\r\nEND\r\n"))
	f.Add([]byte("VALUE a 0 5\r\nhel"))
	f.Add([]byte("VALUE a 0 -1\r\n"))
	f.Add([]byte("VALUE a 99999999999 1\r\nx\r\nEND\r\n"))
	f.Add([]byte("SERVER_ERROR out of memory\r\n"))
	f.Add([]byte("CLIENT_ERROR\r\n"))
	f.Add([]byte("ERROR\r\n"))
	f.Add([]byte(""))

	f.Fuzz(func(t *testing.T, data []byte) {
		values, err := ReadValues(bufio.NewReader(bytes.NewReader(data)))
		if err != nil {
			return
		}
		for _, v := range values {
			if v.Key == "" {
				t.Errorf("value with empty key: %+v", v)
			}
		}
	})
}

// FuzzReadRequest fuzzes the command parser used by test servers.
func FuzzReadRequest(f *testing.F) {
	f.Add([]byte("set a 0 0 5\r\nhello\r\n"))
	f.Add([]byte("cas a 0 0 1 5\r\nx\r\n"))
	f.Add([]byte("get a b c\r\n"))
	f.Add([]byte("incr a 1\r\n"))
	f.Add([]byte("stats\r\n"))
	f.Add([]byte("set a 0 0 -1\r\n"))
	f.Add([]byte("\r\n"))

	f.Fuzz(func(t *testing.T, data []byte) {
		req, err := ReadRequest(bufio.NewReader(bytes.NewReader(data)))
		if err != nil {
			return
		}
		if req.Verb == "" {
			t.Error("parsed request without verb")
		}
	})
}
