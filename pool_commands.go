package memcache

import (
	"bufio"
	"context"
	"strconv"
	"strings"

	"github.com/pior/memcache-text/ascii"
	"golang.org/x/sync/errgroup"
)

// fanOut runs fn on every registered server concurrently.
// Results are returned in registration order. When servers fail, the error
// of the first failing server in registration order is returned.
func fanOut[T any](ctx context.Context, c *Client, fn func(ctx context.Context, sp *ServerPool) (T, error)) ([]*ServerPool, []T, error) {
	pools, err := c.allPools()
	if err != nil {
		return nil, nil, err
	}

	results := make([]T, len(pools))
	errs := make([]error, len(pools))

	var g errgroup.Group
	for i, sp := range pools {
		i, sp := i, sp
		g.Go(func() error {
			results[i], errs[i] = fn(ctx, sp)
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return pools, results, err
		}
	}
	return pools, results, nil
}

// Flush invalidates every item on every server. A delay > 0 schedules the
// invalidation that many seconds later on the server side.
func (c *Client) Flush(ctx context.Context, delay int) (Result, error) {
	req := ascii.NewRequest(ascii.VerbFlushAll)
	if delay > 0 {
		req = ascii.NewRequest(ascii.VerbFlushAll, strconv.Itoa(delay))
	}

	_, results, err := fanOut(ctx, c, func(ctx context.Context, sp *ServerPool) (Result, error) {
		return c.command(ctx, sp, req, flushSignals)
	})
	if err != nil {
		return c.fail(err)
	}

	for _, res := range results {
		if !res.OK() {
			return c.result.set(res), nil
		}
	}
	return c.result.set(newResult(ResSuccess, "")), nil
}

// GetStats returns the general statistics of every server, keyed by server
// key.
func (c *Client) GetStats(ctx context.Context) (map[string]map[string]string, error) {
	return c.GetStatsArg(ctx, "")
}

// GetStatsArg returns a statistics group ("items", "slabs", "settings",
// ...) of every server, keyed by server key. An empty arg returns the
// general statistics.
func (c *Client) GetStatsArg(ctx context.Context, arg string) (map[string]map[string]string, error) {
	var req *ascii.Request
	if arg == "" {
		req = ascii.NewRequest(ascii.VerbStats)
	} else {
		req = ascii.NewRequest(ascii.VerbStats, strings.Fields(arg)...)
	}

	pools, results, err := fanOut(ctx, c, func(ctx context.Context, sp *ServerPool) ([]ascii.Stat, error) {
		return c.readStats(ctx, sp, req)
	})
	if err != nil {
		_, err = c.fail(err)
		return nil, err
	}

	out := make(map[string]map[string]string, len(pools))
	for i, sp := range pools {
		m := make(map[string]string, len(results[i]))
		for _, stat := range results[i] {
			m[stat.Name] = stat.Value
		}
		out[sp.Server().Key()] = m
	}

	c.result.set(newResult(ResSuccess, ""))
	return out, nil
}

func (c *Client) readStats(ctx context.Context, sp *ServerPool, req *ascii.Request) ([]ascii.Stat, error) {
	var stats []ascii.Stat
	err := c.stream(ctx, sp, req, func(r *bufio.Reader) error {
		var err error
		stats, err = ascii.ReadStats(r)
		return err
	})
	return stats, err
}

// GetVersion returns the version of every server, keyed by server key.
func (c *Client) GetVersion(ctx context.Context) (map[string]string, error) {
	req := ascii.NewRequest(ascii.VerbVersion)

	pools, results, err := fanOut(ctx, c, func(ctx context.Context, sp *ServerPool) (string, error) {
		line, err := c.query(ctx, sp, req)
		if err != nil {
			return "", err
		}
		version, err := ascii.ParseVersion(line)
		if err != nil {
			return "", c.wrapError(sp, req, err)
		}
		return version, nil
	})
	if err != nil {
		_, err = c.fail(err)
		return nil, err
	}

	out := make(map[string]string, len(pools))
	for i, sp := range pools {
		out[sp.Server().Key()] = results[i]
	}

	c.result.set(newResult(ResSuccess, ""))
	return out, nil
}

// GetAllKeys lists the keys stored on every server, using "stats items" to
// find populated slabs and "stats cachedump" to list each of them.
//
// Keys are returned as stored, including any prefix, without duplicates, in
// server registration order. The server may cap the size of a cachedump, so
// the list can be incomplete on large caches.
func (c *Client) GetAllKeys(ctx context.Context) ([]string, error) {
	_, results, err := fanOut(ctx, c, c.serverKeys)
	if err != nil {
		_, err = c.fail(err)
		return nil, err
	}

	seen := make(map[string]struct{})
	var keys []string
	for _, serverKeys := range results {
		for _, key := range serverKeys {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}

	c.result.set(newResult(ResSuccess, ""))
	return keys, nil
}

// serverKeys lists the keys of one server.
func (c *Client) serverKeys(ctx context.Context, sp *ServerPool) ([]string, error) {
	stats, err := c.readStats(ctx, sp, ascii.NewRequest(ascii.VerbStats, ascii.StatsItems))
	if err != nil {
		return nil, err
	}

	slabs, counts := ascii.SlabCounts(stats)

	var keys []string
	for _, slab := range slabs {
		req := ascii.NewRequest(ascii.VerbStats, ascii.StatsCachedump, strconv.Itoa(slab), strconv.Itoa(counts[slab]))

		var items []ascii.ItemInfo
		err := c.stream(ctx, sp, req, func(r *bufio.Reader) error {
			var err error
			items, err = ascii.ReadItems(r)
			return err
		})
		if err != nil {
			return nil, err
		}

		for _, item := range items {
			keys = append(keys, item.Key)
		}
	}
	return keys, nil
}
