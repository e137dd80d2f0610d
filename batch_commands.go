package memcache

import (
	"context"
	"errors"
	"sort"
)

// SetMulti stores every item on the default server. Keys are stored in
// sorted order and the call stops at the first item that is not stored;
// the returned Result is that item's result.
func (c *Client) SetMulti(ctx context.Context, items map[string]any, expiration int64) (Result, error) {
	return c.SetMultiByKey(ctx, "", items, expiration)
}

// SetMultiByKey is SetMulti on the server named by serverKey.
func (c *Client) SetMultiByKey(ctx context.Context, serverKey string, items map[string]any, expiration int64) (Result, error) {
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		res, err := c.SetByKey(ctx, serverKey, key, items[key], expiration)
		if err != nil || !res.OK() {
			return res, err
		}
	}

	return c.result.set(newResult(ResSuccess, "")), nil
}

// DeleteMulti deletes keys on the default server and reports the result of
// each key.
//
// The aggregate Result is SUCCESS when every key was deleted, otherwise the
// result of the last key that was not. A connection or protocol error stops
// the loop and is returned with the results gathered so far. An invalid key
// is reported as that key's result.
func (c *Client) DeleteMulti(ctx context.Context, keys []string) (map[string]Result, Result, error) {
	return c.DeleteMultiByKey(ctx, "", keys)
}

// DeleteMultiByKey is DeleteMulti on the server named by serverKey.
func (c *Client) DeleteMultiByKey(ctx context.Context, serverKey string, keys []string) (map[string]Result, Result, error) {
	results := make(map[string]Result, len(keys))
	aggregate := newResult(ResSuccess, "")

	for _, key := range keys {
		res, err := c.DeleteByKey(ctx, serverKey, key)
		var invalidKey *InvalidKeyError
		if err != nil && !errors.As(err, &invalidKey) {
			return results, res, err
		}
		results[key] = res
		if !res.OK() {
			aggregate = res
		}
	}

	return results, c.result.set(aggregate), nil
}
