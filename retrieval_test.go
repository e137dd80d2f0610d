package memcache

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/pior/memcache-text/ascii"
	"github.com/pior/memcache-text/internal/memtest"
	"github.com/stretchr/testify/require"
)

func itemKeys(items []Item) []string {
	keys := make([]string, 0, len(items))
	for _, item := range items {
		keys = append(keys, item.Key)
	}
	return keys
}

func TestGetMiss(t *testing.T) {
	s := memtest.Start(t)
	c := newTestClient(t, s)

	item, err := c.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, item.Found())
	require.Equal(t, ResNotFound, item.Code)
	require.Equal(t, "missing", item.Key)
}

func TestGets(t *testing.T) {
	s := memtest.Start(t)
	c := newTestClient(t, s)
	ctx := context.Background()

	requireResult(t, ResSuccess)(c.Set(ctx, "k", "v", 0))

	item, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, item.HasCAS)

	item, err = c.Gets(ctx, "k")
	require.NoError(t, err)
	require.True(t, item.HasCAS)
	require.NotZero(t, item.CAS)
	require.Contains(t, s.Commands(), "gets k")
}

func TestGetMulti(t *testing.T) {
	s := memtest.Start(t)
	c := newTestClient(t, s)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		requireResult(t, ResSuccess)(c.Set(ctx, key, key+"-value", 0))
	}

	// The fake server answers in request order, so reverse the reply to
	// tell both modes apart.
	s.Handle(ascii.VerbGet, func(req *ascii.Request) (string, bool) {
		reply := ""
		for i := len(req.Keys) - 1; i >= 0; i-- {
			data, _, ok := s.Item(req.Keys[i])
			if ok {
				reply += "VALUE " + req.Keys[i] + " 0 " + strconv.Itoa(len(data)) + "\r\n" + string(data) + "\r\n"
			}
		}
		return reply + "END\r\n", true
	})

	t.Run("arrival order", func(t *testing.T) {
		items, err := c.GetMulti(ctx, []string{"a", "missing", "b", "c"}, 0)
		require.NoError(t, err)
		require.Equal(t, []string{"c", "b", "a"}, itemKeys(items))
		require.Equal(t, ResSuccess, c.ResultCode())
	})

	t.Run("preserve order", func(t *testing.T) {
		items, err := c.GetMulti(ctx, []string{"a", "missing", "b", "c"}, PreserveOrder)
		require.NoError(t, err)
		require.Equal(t, []string{"a", "b", "c"}, itemKeys(items))
		require.Equal(t, "b-value", items[1].Value.String())
	})

	t.Run("duplicate keys are requested once", func(t *testing.T) {
		items, err := c.GetMulti(ctx, []string{"a", "a", "b"}, PreserveOrder)
		require.NoError(t, err)
		require.Equal(t, []string{"a", "b"}, itemKeys(items))
		require.Contains(t, s.Commands(), "get a b")
	})

	t.Run("no keys", func(t *testing.T) {
		items, err := c.GetMulti(ctx, nil, 0)
		require.NoError(t, err)
		require.Empty(t, items)
	})

	t.Run("invalid key", func(t *testing.T) {
		_, err := c.GetMulti(ctx, []string{"a", "bad key"}, 0)
		var keyErr *InvalidKeyError
		require.ErrorAs(t, err, &keyErr)
		require.Equal(t, ResBadKeyProvided, c.ResultCode())
	})
}

func TestGetMultiWithCASAndPrefix(t *testing.T) {
	s := memtest.Start(t)
	c := newTestClient(t, s)
	ctx := context.Background()

	require.NoError(t, c.SetOption(OptPrefixKey, "p:"))
	requireResult(t, ResSuccess)(c.Set(ctx, "a", 1, 0))
	requireResult(t, ResSuccess)(c.Set(ctx, "b", 2, 0))

	items, err := c.GetMulti(ctx, []string{"b", "a"}, PreserveOrder|WithCAS)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a"}, itemKeys(items))
	for _, item := range items {
		require.True(t, item.HasCAS)
	}
	require.Contains(t, s.Commands(), "gets p:b p:a")
}

func TestGetMultiUnrequestedKey(t *testing.T) {
	s := memtest.Start(t)
	c := newTestClient(t, s)

	s.Reply(ascii.VerbGet, "VALUE other 0 1\r\nx\r\nEND\r\n")

	_, err := c.GetMulti(context.Background(), []string{"a"}, 0)
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	require.Equal(t, ResProtocolError, c.ResultCode())
}

func TestReadThrough(t *testing.T) {
	s := memtest.Start(t)
	c := newTestClient(t, s)
	ctx := context.Background()

	calls := 0
	cb := func(ctx context.Context, key string) (any, bool, error) {
		calls++
		return "computed-" + key, true, nil
	}

	item, err := c.GetByKey(ctx, "", "k", cb, 0)
	require.NoError(t, err)
	require.True(t, item.Found())
	require.Equal(t, "computed-k", item.Value.String())
	require.Equal(t, 1, calls)
	require.Contains(t, s.Commands(), "set k 0 0 10")

	// Stored: the callback is not called again
	item, err = c.GetByKey(ctx, "", "k", cb, 0)
	require.NoError(t, err)
	require.Equal(t, "computed-k", item.Value.String())
	require.Equal(t, 1, calls)

	t.Run("with cas", func(t *testing.T) {
		item, err := c.GetByKey(ctx, "", "other", cb, WithCAS)
		require.NoError(t, err)
		require.True(t, item.HasCAS)
		require.Equal(t, "computed-other", item.Value.String())
	})

	t.Run("declined", func(t *testing.T) {
		item, err := c.GetByKey(ctx, "", "none", func(context.Context, string) (any, bool, error) {
			return nil, false, nil
		}, 0)
		require.NoError(t, err)
		require.Equal(t, ResNotFound, item.Code)
		requireMissing(t, c, "none")
	})

	t.Run("callback error", func(t *testing.T) {
		boom := errors.New("boom")
		item, err := c.GetByKey(ctx, "", "fail", func(context.Context, string) (any, bool, error) {
			return nil, false, boom
		}, 0)
		require.ErrorIs(t, err, boom)
		require.Equal(t, ResFailure, item.Code)
	})
}

func TestGetByKey(t *testing.T) {
	s1 := memtest.Start(t)
	s2 := memtest.Start(t)
	c := newTestClient(t, s1, s2)
	ctx := context.Background()

	requireResult(t, ResSuccess)(c.SetByKey(ctx, s2.Addr(), "k", "on-two", 0))
	require.Equal(t, 0, s1.Len())
	require.Equal(t, 1, s2.Len())

	requireMissing(t, c, "k")

	item, err := c.GetByKey(ctx, s2.Addr(), "k", nil, 0)
	require.NoError(t, err)
	require.Equal(t, "on-two", item.Value.String())

	items, err := c.GetMultiByKey(ctx, s2.Addr(), []string{"k"}, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)

	_, err = c.GetByKey(ctx, "unknown:1", "k", nil, 0)
	require.ErrorIs(t, err, ErrUnknownServer)
}

func TestDecodeFailure(t *testing.T) {
	s := memtest.Start(t)
	c := newTestClient(t, s)

	s.SetItem("bad-int", []byte("not a number"), 1)

	item, err := c.Get(context.Background(), "bad-int")
	var payloadErr *PayloadError
	require.ErrorAs(t, err, &payloadErr)
	require.Equal(t, ResPayloadFailure, item.Code)
}
