package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pior/memcache-text/internal/memtest"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, srv *memtest.Server, args ...string) string {
	t.Helper()

	var out bytes.Buffer
	root := newRootCmd(newApp())
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--servers", srv.Addr()}, args...))

	require.NoError(t, root.Execute(), out.String())
	return out.String()
}

func TestStoreAndGet(t *testing.T) {
	srv := memtest.Start(t)

	require.Equal(t, "SUCCESS\n", run(t, srv, "set", "greeting", "hello"))
	require.Equal(t, "greeting = \"hello\"\n", run(t, srv, "get", "greeting"))
	require.Equal(t, "NOT STORED: NOT_STORED\n", run(t, srv, "add", "greeting", "again"))
	require.Equal(t, "SUCCESS\n", run(t, srv, "append", "greeting", "!"))

	data, _, ok := srv.Item("greeting")
	require.True(t, ok)
	require.Equal(t, "hello!", string(data))
}

func TestStoreTypedValue(t *testing.T) {
	srv := memtest.Start(t)

	run(t, srv, "set", "--type", "json", "--flags", "3", "doc", `{"a":1}`)
	require.Equal(t, "doc = {\"a\":1} flags=3\n", run(t, srv, "get", "doc"))
}

func TestMissingKey(t *testing.T) {
	srv := memtest.Start(t)

	require.Equal(t, "nope: NOT FOUND: NOT_FOUND\n", run(t, srv, "get", "nope"))
}

func TestCounters(t *testing.T) {
	srv := memtest.Start(t)

	require.Equal(t, "10\n", run(t, srv, "incr", "--initial", "10", "hits"))
	require.Equal(t, "15\n", run(t, srv, "incr", "hits", "5"))
	require.Equal(t, "14\n", run(t, srv, "decr", "hits"))
}

func TestDeleteMany(t *testing.T) {
	srv := memtest.Start(t)
	srv.SetItem("a", []byte("1"), 0)

	out := run(t, srv, "delete", "a", "b")
	require.Equal(t, "a: SUCCESS\nb: NOT FOUND: NOT_FOUND\nNOT FOUND: NOT_FOUND\n", out)
}

func TestServerCommands(t *testing.T) {
	srv := memtest.Start(t)
	srv.SetItem("one", []byte("1"), 0)

	require.Equal(t, srv.Addr()+" "+memtest.Version+"\n", run(t, srv, "version"))
	require.Equal(t, "one\n", run(t, srv, "keys"))
	require.Contains(t, run(t, srv, "stats"), "  curr_items 1\n")
	require.Equal(t, "SUCCESS\n", run(t, srv, "flush"))
}

func TestInvalidValueType(t *testing.T) {
	srv := memtest.Start(t)

	root := newRootCmd(newApp())
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--servers", srv.Addr(), "set", "--type", "int", "k", "ten"})
	require.Error(t, root.Execute())
}

func TestShell(t *testing.T) {
	srv := memtest.Start(t)

	var out bytes.Buffer
	root := newRootCmd(newApp())
	root.SetIn(strings.NewReader("set k v\n\nget k\nbogus\nexit\n"))
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"--servers", srv.Addr(), "shell"})
	require.NoError(t, root.Execute())

	lines := out.String()
	require.Contains(t, lines, prompt+"SUCCESS\n")
	require.Contains(t, lines, prompt+"k = \"v\"\n")
	require.Contains(t, lines, "error: unknown command \"bogus\"")
	require.Equal(t, 1, srv.Accepted())
}

func TestBench(t *testing.T) {
	srv := memtest.Start(t)

	out := run(t, srv, "bench", "--operation", "all", "--duration", "20ms", "--concurrency", "2")
	for _, op := range benchOperations {
		require.Contains(t, out, "Operation: "+string(op)+"\n")
	}
	require.NotContains(t, out, "Correctness: false")
	require.NotRegexp(t, `Failures: [1-9]`, out)
}
