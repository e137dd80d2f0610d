package memcache

import (
	"context"
	"testing"

	"github.com/pior/memcache-text/ascii"
	"github.com/pior/memcache-text/internal/memtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetMulti(t *testing.T) {
	s := memtest.Start(t)
	c := newTestClient(t, s)
	ctx := context.Background()

	res, err := c.SetMulti(ctx, map[string]any{"b": 2, "a": "one", "c": true}, 0)
	requireResult(t, ResSuccess)(res, err)

	requireValue(t, c, "a", "one")
	requireValue(t, c, "b", int64(2))
	requireValue(t, c, "c", true)

	sets := filterCommands(s.Commands(), "set ")
	require.Len(t, sets, 3)
	assert.Equal(t, "set a 0 0 3", sets[0])
	assert.Equal(t, "set b 1 0 1", sets[1])
}

func TestSetMultiStopsAtFirstFailure(t *testing.T) {
	s := memtest.Start(t)
	c := newTestClient(t, s)
	ctx := context.Background()

	s.Handle(ascii.VerbSet, func(req *ascii.Request) (string, bool) {
		if req.Key() == "b" {
			return "NOT_STORED\r\n", true
		}
		return "", false
	})

	res, err := c.SetMulti(ctx, map[string]any{"a": 1, "b": 2, "c": 3}, 0)
	requireResult(t, ResNotStored)(res, err)
	require.Equal(t, ResNotStored, c.ResultCode())

	requireValue(t, c, "a", int64(1))
	requireMissing(t, c, "c")
}

func TestDeleteMulti(t *testing.T) {
	s := memtest.Start(t)
	c := newTestClient(t, s)
	ctx := context.Background()

	requireResult(t, ResSuccess)(c.SetMulti(ctx, map[string]any{"a": 1, "b": 2}, 0))

	results, aggregate, err := c.DeleteMulti(ctx, []string{"a", "missing", "b"})
	require.NoError(t, err)
	assert.Equal(t, ResNotFound, aggregate.Code)
	assert.Equal(t, map[string]Result{
		"a":       {Code: ResSuccess},
		"missing": {Code: ResNotFound, Message: "NOT_FOUND"},
		"b":       {Code: ResSuccess},
	}, results)
	assert.Equal(t, 0, s.Len())

	t.Run("all deleted", func(t *testing.T) {
		requireResult(t, ResSuccess)(c.Set(ctx, "x", 1, 0))
		results, aggregate, err := c.DeleteMulti(ctx, []string{"x"})
		require.NoError(t, err)
		assert.True(t, aggregate.OK())
		assert.Len(t, results, 1)
	})

	t.Run("invalid key is reported per key", func(t *testing.T) {
		requireResult(t, ResSuccess)(c.Set(ctx, "y", 1, 0))
		results, aggregate, err := c.DeleteMulti(ctx, []string{"bad key", "y"})
		require.NoError(t, err)
		assert.Equal(t, ResBadKeyProvided, results["bad key"].Code)
		assert.Equal(t, ResSuccess, results["y"].Code)
		assert.Equal(t, ResBadKeyProvided, aggregate.Code)
	})

	t.Run("server error stops the loop", func(t *testing.T) {
		s.Reply(ascii.VerbDelete, "SERVER_ERROR busy\r\n")
		defer s.Handle(ascii.VerbDelete, nil)

		results, aggregate, err := c.DeleteMulti(ctx, []string{"p", "q"})
		require.Error(t, err)
		assert.Equal(t, ResServerError, aggregate.Code)
		assert.Empty(t, results)
	})
}
