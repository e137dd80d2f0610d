package memcache

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/pior/memcache-text/ascii"
	"github.com/pior/memcache-text/codec"
	"github.com/pior/memcache-text/internal/memtest"
	"github.com/stretchr/testify/require"
)

type profile struct {
	Name string `json:"name" cbor:"name" msgpack:"name"`
	Age  int    `json:"age" cbor:"age" msgpack:"age"`
}

func TestSetGetValues(t *testing.T) {
	s := memtest.Start(t)
	c := newTestClient(t, s)
	ctx := context.Background()

	tests := []struct {
		name     string
		value    any
		expected any
	}{
		{"string", "hello", "hello"},
		{"empty string", "", ""},
		{"protocol lookalike", "END\r\nVALUE x 0 1\r\n", "END\r\nVALUE x 0 1\r\n"},
		{"bytes", []byte("raw"), "raw"},
		{"int", 42, int64(42)},
		{"negative int", -7, int64(-7)},
		{"uint64", uint64(1 << 63), uint64(1 << 63)},
		{"float", 1.5, 1.5},
		{"true", true, true},
		{"false", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := strings.ReplaceAll(tt.name, " ", "_")
			requireResult(t, ResSuccess)(c.Set(ctx, key, tt.value, 0))
			requireValue(t, c, key, tt.expected)
		})
	}
}

func TestSetSerialized(t *testing.T) {
	s := memtest.Start(t)
	c := newTestClient(t, s)
	ctx := context.Background()

	for _, kind := range []codec.SerializerKind{codec.SerializerCBOR, codec.SerializerMsgpack, codec.SerializerJSON, codec.SerializerJSONArray} {
		t.Run(kind.String(), func(t *testing.T) {
			require.NoError(t, c.SetOption(OptSerializer, kind))

			in := profile{Name: "ann", Age: 31}
			requireResult(t, ResSuccess)(c.Set(ctx, "profile", in, 0))

			item, err := c.Get(ctx, "profile")
			require.NoError(t, err)
			require.Equal(t, codec.KindSerialized, item.Value.Kind())

			var out profile
			require.NoError(t, item.Value.Unmarshal(&out))
			require.Equal(t, in, out)
		})
	}
}

func TestUserFlags(t *testing.T) {
	s := memtest.Start(t)
	c := newTestClient(t, s)
	ctx := context.Background()

	requireResult(t, ResSuccess)(c.Set(ctx, "flagged", Flagged{Value: "v", Flags: 0xBEEF}, 0))

	_, word, ok := s.Item("flagged")
	require.True(t, ok)
	require.Equal(t, uint32(0xBEEF)<<16, word&0xFFFF0000)

	item, err := c.Get(ctx, "flagged")
	require.NoError(t, err)
	require.Equal(t, uint16(0xBEEF), item.UserFlags)
	require.Equal(t, "v", item.Value.String())
}

func TestAdd(t *testing.T) {
	s := memtest.Start(t)
	c := newTestClient(t, s)
	ctx := context.Background()

	requireResult(t, ResSuccess)(c.Add(ctx, "k", "first", 0))
	requireResult(t, ResNotStored)(c.Add(ctx, "k", "second", 0))
	require.Equal(t, ResNotStored, c.ResultCode())
	requireValue(t, c, "k", "first")
}

func TestReplace(t *testing.T) {
	s := memtest.Start(t)
	c := newTestClient(t, s)
	ctx := context.Background()

	requireResult(t, ResNotStored)(c.Replace(ctx, "k", "v", 0))
	requireMissing(t, c, "k")

	requireResult(t, ResSuccess)(c.Set(ctx, "k", "v1", 0))
	requireResult(t, ResSuccess)(c.Replace(ctx, "k", "v2", 0))
	requireValue(t, c, "k", "v2")
}

func TestCas(t *testing.T) {
	s := memtest.Start(t)
	c := newTestClient(t, s)
	ctx := context.Background()

	requireResult(t, ResNotFound)(c.Cas(ctx, 1, "k", "v", 0))

	requireResult(t, ResSuccess)(c.Set(ctx, "k", "v1", 0))
	item, err := c.Gets(ctx, "k")
	require.NoError(t, err)
	require.True(t, item.HasCAS)

	// A write in between makes the token stale
	requireResult(t, ResSuccess)(c.Set(ctx, "k", "v2", 0))
	requireResult(t, ResDataExists)(c.Cas(ctx, item.CAS, "k", "v3", 0))
	requireValue(t, c, "k", "v2")

	fresh, err := c.Gets(ctx, "k")
	require.NoError(t, err)
	require.NotEqual(t, item.CAS, fresh.CAS)
	requireResult(t, ResSuccess)(c.Cas(ctx, fresh.CAS, "k", "v3", 0))
	requireValue(t, c, "k", "v3")

	require.Contains(t, s.Commands(), "cas k 0 0 2 "+strconv.FormatUint(fresh.CAS, 10))
}

func TestAppendPrepend(t *testing.T) {
	s := memtest.Start(t)
	c := newTestClient(t, s)
	ctx := context.Background()

	requireResult(t, ResNotStored)(c.Append(ctx, "k", "x"))

	requireResult(t, ResSuccess)(c.Set(ctx, "k", "mid", 0))
	requireResult(t, ResSuccess)(c.Append(ctx, "k", "-end"))
	requireResult(t, ResSuccess)(c.Prepend(ctx, "k", 0))
	requireValue(t, c, "k", "0mid-end")

	_, err := c.Append(ctx, "k", profile{})
	var payloadErr *PayloadError
	require.ErrorAs(t, err, &payloadErr)
	require.Equal(t, ResPayloadFailure, c.ResultCode())
}

func TestDeleteAndTouch(t *testing.T) {
	s := memtest.Start(t)
	c := newTestClient(t, s)
	ctx := context.Background()

	requireResult(t, ResNotFound)(c.Delete(ctx, "k"))
	requireResult(t, ResNotFound)(c.Touch(ctx, "k", 10))

	requireResult(t, ResSuccess)(c.Set(ctx, "k", "v", 0))
	requireResult(t, ResSuccess)(c.Touch(ctx, "k", 100))
	require.Contains(t, s.Commands(), "touch k 100")

	requireResult(t, ResSuccess)(c.Delete(ctx, "k"))
	requireMissing(t, c, "k")
}

func TestExpiration(t *testing.T) {
	s := memtest.Start(t)
	c := newTestClient(t, s)
	ctx := context.Background()

	requireResult(t, ResSuccess)(c.Set(ctx, "k", "v", 3600))
	require.Contains(t, s.Commands(), "set k 0 3600 1")

	requireResult(t, ResSuccess)(c.Touch(ctx, "k", -1))
	requireMissing(t, c, "k")
}

func TestCounters(t *testing.T) {
	s := memtest.Start(t)
	c := newTestClient(t, s)
	ctx := context.Background()

	t.Run("increment existing", func(t *testing.T) {
		requireResult(t, ResSuccess)(c.Set(ctx, "hits", 10, 0))
		counter, err := c.Increment(ctx, "hits", 5, 0, 0)
		require.NoError(t, err)
		require.Equal(t, ResSuccess, counter.Code)
		require.Equal(t, uint64(15), counter.Value)
		requireValue(t, c, "hits", int64(15))
	})

	t.Run("increment missing stores the initial value", func(t *testing.T) {
		counter, err := c.Increment(ctx, "fresh", 5, 100, 60)
		require.NoError(t, err)
		require.Equal(t, ResSuccess, counter.Code)
		require.Equal(t, uint64(100), counter.Value)

		data, word, ok := s.Item("fresh")
		require.True(t, ok)
		require.Equal(t, "100", string(data))
		flags, err := codec.UnpackFlags(word)
		require.NoError(t, err)
		require.Equal(t, codec.TypeInt, flags.Type)
		require.Contains(t, s.Commands(), "set fresh 1 60 3")
	})

	t.Run("decrement clamps at zero", func(t *testing.T) {
		requireResult(t, ResSuccess)(c.Set(ctx, "stock", 2, 0))
		counter, err := c.Decrement(ctx, "stock", 5, 0, 0)
		require.NoError(t, err)
		require.Equal(t, uint64(0), counter.Value)
	})

	t.Run("decrement missing", func(t *testing.T) {
		counter, err := c.Decrement(ctx, "d1", 3, 10, 0)
		require.NoError(t, err)
		require.Equal(t, uint64(7), counter.Value)
		requireValue(t, c, "d1", int64(7))

		counter, err = c.Decrement(ctx, "d2", 30, 10, 0)
		require.NoError(t, err)
		require.Equal(t, uint64(0), counter.Value)
		requireValue(t, c, "d2", int64(0))
	})

	t.Run("non numeric value", func(t *testing.T) {
		requireResult(t, ResSuccess)(c.Set(ctx, "text", "abc", 0))
		counter, err := c.Increment(ctx, "text", 1, 0, 0)
		require.Error(t, err)
		require.Equal(t, ResClientError, counter.Code)
	})

	t.Run("storage reply is a protocol error", func(t *testing.T) {
		s.Reply(ascii.VerbIncr, "STORED\r\n")
		defer s.Handle(ascii.VerbIncr, nil)

		counter, err := c.Increment(ctx, "hits", 1, 0, 0)
		var protoErr *ProtocolError
		require.ErrorAs(t, err, &protoErr)
		require.Equal(t, ResProtocolError, counter.Code)
	})

	t.Run("failed fallback set", func(t *testing.T) {
		s.Reply(ascii.VerbSet, "NOT_STORED\r\n")
		defer s.Handle(ascii.VerbSet, nil)

		counter, err := c.Increment(ctx, "racy", 1, 5, 0)
		require.NoError(t, err)
		require.Equal(t, ResNotStored, counter.Code)
	})
}

func TestInvalidKeys(t *testing.T) {
	s := memtest.Start(t)
	c := newTestClient(t, s)
	ctx := context.Background()

	for _, key := range []string{"", "with space", "new\nline", strings.Repeat("k", 251)} {
		res, err := c.Set(ctx, key, "v", 0)
		var keyErr *InvalidKeyError
		require.ErrorAs(t, err, &keyErr)
		require.Equal(t, ResBadKeyProvided, res.Code)
	}

	// The prefix counts toward the key length
	require.NoError(t, c.SetOption(OptPrefixKey, strings.Repeat("p", 10)))
	_, err := c.Set(ctx, strings.Repeat("k", 241), "v", 0)
	require.Error(t, err)
	requireResult(t, ResSuccess)(c.Set(ctx, strings.Repeat("k", 240), "v", 0))

	require.Empty(t, filterCommands(s.Commands(), "set "+strings.Repeat("p", 10)+strings.Repeat("k", 241)))
}

func TestPrefixKey(t *testing.T) {
	s := memtest.Start(t)
	c := newTestClient(t, s)
	ctx := context.Background()

	require.NoError(t, c.SetOption(OptPrefixKey, "ns:"))
	requireResult(t, ResSuccess)(c.Set(ctx, "k", "v", 0))

	_, _, ok := s.Item("ns:k")
	require.True(t, ok)
	_, _, ok = s.Item("k")
	require.False(t, ok)

	item, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "k", item.Key)
	requireResult(t, ResSuccess)(c.Delete(ctx, "k"))
}

func TestCompression(t *testing.T) {
	s := memtest.Start(t)
	c := newTestClient(t, s)
	ctx := context.Background()

	large := strings.Repeat("compressible ", 500)
	requireResult(t, ResSuccess)(c.Set(ctx, "large", large, 0))
	requireResult(t, ResSuccess)(c.Set(ctx, "small", "tiny", 0))

	data, word, ok := s.Item("large")
	require.True(t, ok)
	require.Less(t, len(data), len(large))
	flags, err := codec.UnpackFlags(word)
	require.NoError(t, err)
	require.Equal(t, codec.CompressionZlib, flags.Compression)

	_, word, ok = s.Item("small")
	require.True(t, ok)
	flags, err = codec.UnpackFlags(word)
	require.NoError(t, err)
	require.Equal(t, codec.CompressionNone, flags.Compression)

	requireValue(t, c, "large", large)

	require.NoError(t, c.SetOption(OptCompression, false))
	requireResult(t, ResSuccess)(c.Set(ctx, "plain", large, 0))
	data, _, _ = s.Item("plain")
	require.Equal(t, large, string(data))

	// Compressed items stay readable with compression disabled
	requireValue(t, c, "large", large)
}

func filterCommands(commands []string, prefix string) []string {
	var out []string
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, prefix) {
			out = append(out, cmd)
		}
	}
	return out
}
