package memcache

import (
	"bufio"
	"context"

	"github.com/pior/memcache-text/ascii"
	"github.com/pior/memcache-text/codec"
)

// ReadThroughFunc is called by GetByKey on a miss.
// Returning ok=true stores value under key with no expiration and returns
// it as the item.
type ReadThroughFunc func(ctx context.Context, key string) (value any, ok bool, err error)

// Get retrieves key. A missing key yields an item with ResNotFound.
func (c *Client) Get(ctx context.Context, key string) (Item, error) {
	return c.GetByKey(ctx, "", key, nil, 0)
}

// Gets retrieves key with its CAS token.
func (c *Client) Gets(ctx context.Context, key string) (Item, error) {
	return c.GetByKey(ctx, "", key, nil, WithCAS)
}

// GetByKey retrieves key from the server named by serverKey.
//
// With flags WithCAS the item carries its CAS token. On a miss, cb (if not
// nil) may provide the value: it is stored with set, and when a CAS token
// was requested the item is fetched again to obtain it.
func (c *Client) GetByKey(ctx context.Context, serverKey, key string, cb ReadThroughFunc, flags GetFlags) (Item, error) {
	opts := c.session.snapshot()

	wk, err := wireKey(opts, key)
	if err != nil {
		return c.failItem(key, err)
	}

	sp, err := c.serverPool(serverKey)
	if err != nil {
		return c.failItem(key, err)
	}

	values, err := c.retrieve(ctx, sp, flags, wk)
	if err != nil {
		return c.failItem(key, err)
	}
	c.stats.recordGet(1, len(values))

	if len(values) > 0 {
		item, err := decodeItem(key, values[0], opts)
		if err != nil {
			return c.failItem(key, err)
		}
		c.result.set(item.Result)
		return item, nil
	}

	if cb == nil {
		res := c.result.set(newResult(ResNotFound, ascii.TokenNotFound))
		return Item{Result: res, Key: key}, nil
	}

	value, ok, err := cb(ctx, key)
	if err != nil {
		return c.failItem(key, err)
	}
	if !ok {
		res := c.result.set(newResult(ResNotFound, ascii.TokenNotFound))
		return Item{Result: res, Key: key}, nil
	}

	res, err := c.SetByKey(ctx, serverKey, key, value, NoTTL)
	if err != nil || !res.OK() {
		return Item{Result: res, Key: key}, err
	}

	if flags&WithCAS != 0 {
		return c.GetByKey(ctx, serverKey, key, nil, flags)
	}

	var userFlags uint16
	if f, ok := value.(Flagged); ok {
		value, userFlags = f.Value, f.Flags
	}
	return Item{Result: res, Key: key, Value: codec.ValueOf(value), UserFlags: userFlags}, nil
}

// GetMulti retrieves keys from the default server in one request.
//
// Missing keys are omitted. With PreserveOrder the items follow the order of
// keys; otherwise they follow the server's reply order. With WithCAS the
// items carry CAS tokens.
func (c *Client) GetMulti(ctx context.Context, keys []string, flags GetFlags) ([]Item, error) {
	return c.GetMultiByKey(ctx, "", keys, flags)
}

// GetMultiByKey is GetMulti on the server named by serverKey.
func (c *Client) GetMultiByKey(ctx context.Context, serverKey string, keys []string, flags GetFlags) ([]Item, error) {
	opts := c.session.snapshot()

	// Wire keys, deduplicated, mapped back to the caller's keys.
	wireKeys := make([]string, 0, len(keys))
	callerKeys := make(map[string]string, len(keys))
	for _, key := range keys {
		wk, err := wireKey(opts, key)
		if err != nil {
			_, err = c.fail(err)
			return nil, err
		}
		if _, dup := callerKeys[wk]; dup {
			continue
		}
		callerKeys[wk] = key
		wireKeys = append(wireKeys, wk)
	}

	if len(wireKeys) == 0 {
		c.result.set(newResult(ResSuccess, ""))
		return nil, nil
	}

	sp, err := c.serverPool(serverKey)
	if err != nil {
		_, err = c.fail(err)
		return nil, err
	}

	values, err := c.retrieve(ctx, sp, flags, wireKeys...)
	if err != nil {
		_, err = c.fail(err)
		return nil, err
	}

	found := make(map[string]Item, len(values))
	arrival := make([]string, 0, len(values))
	for _, v := range values {
		key, ok := callerKeys[v.Key]
		if !ok {
			_, err := c.fail(&ProtocolError{
				Server:  sp.Server().Key(),
				Command: string(ascii.VerbGet),
				Err:     &ascii.ParseError{Message: "reply for a key that was not requested", Line: v.Key},
			})
			return nil, err
		}
		if _, dup := found[key]; dup {
			continue
		}

		item, err := decodeItem(key, v, opts)
		if err != nil {
			_, err = c.fail(err)
			return nil, err
		}
		found[key] = item
		arrival = append(arrival, key)
	}
	c.stats.recordGet(len(wireKeys), len(found))

	order := arrival
	if flags&PreserveOrder != 0 {
		order = make([]string, 0, len(found))
		for _, wk := range wireKeys {
			if key := callerKeys[wk]; hasKey(found, key) {
				order = append(order, key)
			}
		}
	}

	items := make([]Item, 0, len(order))
	for _, key := range order {
		items = append(items, found[key])
	}

	c.result.set(newResult(ResSuccess, ""))
	return items, nil
}

func hasKey(m map[string]Item, key string) bool {
	_, ok := m[key]
	return ok
}

// retrieve runs get or gets for wire keys and returns the VALUE blocks.
func (c *Client) retrieve(ctx context.Context, sp *ServerPool, flags GetFlags, keys ...string) ([]ascii.Value, error) {
	verb := ascii.VerbGet
	if flags&WithCAS != 0 {
		verb = ascii.VerbGets
	}

	var values []ascii.Value
	err := c.stream(ctx, sp, ascii.NewRetrievalRequest(verb, keys...), func(r *bufio.Reader) error {
		var err error
		values, err = ascii.ReadValues(r)
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, v := range values {
		c.stats.recordRead(len(v.Data))
	}
	return values, nil
}

func decodeItem(key string, v ascii.Value, opts SessionOptions) (Item, error) {
	value, flags, err := codec.Decode(v.Data, v.Flags, opts.Codec)
	if err != nil {
		return Item{}, err
	}

	return Item{
		Result:    newResult(ResSuccess, ""),
		Key:       key,
		Value:     value,
		UserFlags: flags.User,
		CAS:       v.CAS,
		HasCAS:    v.HasCAS,
	}, nil
}

func (c *Client) failItem(key string, err error) (Item, error) {
	res, err := c.fail(err)
	return Item{Result: res, Key: key}, err
}
