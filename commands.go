package memcache

import (
	"context"
	"strconv"

	"github.com/pior/memcache-text/ascii"
	"github.com/pior/memcache-text/codec"
)

// Querier is the single-key item API of the client, against the default
// server.
type Querier interface {
	Get(ctx context.Context, key string) (Item, error)
	Set(ctx context.Context, key string, value any, expiration int64) (Result, error)
	Add(ctx context.Context, key string, value any, expiration int64) (Result, error)
	Delete(ctx context.Context, key string) (Result, error)
	Increment(ctx context.Context, key string, offset, initialValue uint64, expiration int64) (Counter, error)
}

var _ Querier = (*Client)(nil)

// Flagged attaches caller-owned flags to a stored value. The flags occupy
// the high 16 bits of the wire flags word and come back as Item.UserFlags.
type Flagged struct {
	Value any
	Flags uint16
}

// Set stores value under key.
func (c *Client) Set(ctx context.Context, key string, value any, expiration int64) (Result, error) {
	return c.SetByKey(ctx, "", key, value, expiration)
}

// SetByKey stores value under key on the server named by serverKey.
func (c *Client) SetByKey(ctx context.Context, serverKey, key string, value any, expiration int64) (Result, error) {
	return c.store(ctx, ascii.VerbSet, serverKey, key, value, expiration, 0)
}

// Add stores value only if key does not exist yet.
// An existing key yields ResNotStored and leaves the stored value unchanged.
func (c *Client) Add(ctx context.Context, key string, value any, expiration int64) (Result, error) {
	return c.AddByKey(ctx, "", key, value, expiration)
}

// AddByKey is Add on the server named by serverKey.
func (c *Client) AddByKey(ctx context.Context, serverKey, key string, value any, expiration int64) (Result, error) {
	return c.store(ctx, ascii.VerbAdd, serverKey, key, value, expiration, 0)
}

// Replace stores value only if key already exists.
func (c *Client) Replace(ctx context.Context, key string, value any, expiration int64) (Result, error) {
	return c.ReplaceByKey(ctx, "", key, value, expiration)
}

// ReplaceByKey is Replace on the server named by serverKey.
func (c *Client) ReplaceByKey(ctx context.Context, serverKey, key string, value any, expiration int64) (Result, error) {
	return c.store(ctx, ascii.VerbReplace, serverKey, key, value, expiration, 0)
}

// Cas stores value only if the item still has the given CAS token.
// A stale token yields ResDataExists, a missing key ResNotFound.
func (c *Client) Cas(ctx context.Context, casToken uint64, key string, value any, expiration int64) (Result, error) {
	return c.CasByKey(ctx, casToken, "", key, value, expiration)
}

// CasByKey is Cas on the server named by serverKey.
func (c *Client) CasByKey(ctx context.Context, casToken uint64, serverKey, key string, value any, expiration int64) (Result, error) {
	return c.store(ctx, ascii.VerbCas, serverKey, key, value, expiration, casToken)
}

// Append adds value at the end of an existing item.
//
// The stored bytes are extended as-is, so value must be a string, number or
// bool and is sent without type tag or compression. Appending to a
// serialized or compressed item corrupts it.
func (c *Client) Append(ctx context.Context, key string, value any) (Result, error) {
	return c.AppendByKey(ctx, "", key, value)
}

// AppendByKey is Append on the server named by serverKey.
func (c *Client) AppendByKey(ctx context.Context, serverKey, key string, value any) (Result, error) {
	return c.concat(ctx, ascii.VerbAppend, serverKey, key, value)
}

// Prepend adds value at the start of an existing item. See Append.
func (c *Client) Prepend(ctx context.Context, key string, value any) (Result, error) {
	return c.PrependByKey(ctx, "", key, value)
}

// PrependByKey is Prepend on the server named by serverKey.
func (c *Client) PrependByKey(ctx context.Context, serverKey, key string, value any) (Result, error) {
	return c.concat(ctx, ascii.VerbPrepend, serverKey, key, value)
}

// store encodes value and runs a storage command.
func (c *Client) store(ctx context.Context, verb ascii.Verb, serverKey, key string, value any, expiration int64, casToken uint64) (Result, error) {
	opts := c.session.snapshot()

	wk, err := wireKey(opts, key)
	if err != nil {
		return c.fail(err)
	}

	var userFlags uint16
	if f, ok := value.(Flagged); ok {
		value, userFlags = f.Value, f.Flags
	}

	payload, flags, err := codec.Encode(codec.ValueOf(value), opts.Codec)
	if err != nil {
		return c.fail(err)
	}
	flags.User = userFlags

	var req *ascii.Request
	if verb == ascii.VerbCas {
		req = ascii.NewCasRequest(wk, flags.Pack(), expiration, casToken, payload)
	} else {
		req = ascii.NewStorageRequest(verb, wk, flags.Pack(), expiration, payload)
	}

	return c.storeRequest(ctx, serverKey, req)
}

// concat runs append or prepend with the raw text of a scalar value.
func (c *Client) concat(ctx context.Context, verb ascii.Verb, serverKey, key string, value any) (Result, error) {
	opts := c.session.snapshot()

	wk, err := wireKey(opts, key)
	if err != nil {
		return c.fail(err)
	}

	payload, err := codec.EncodeRaw(codec.ValueOf(value))
	if err != nil {
		return c.fail(err)
	}

	// Flags and exptime are ignored by the server for append and prepend.
	return c.storeRequest(ctx, serverKey, ascii.NewStorageRequest(verb, wk, 0, 0, payload))
}

func (c *Client) storeRequest(ctx context.Context, serverKey string, req *ascii.Request) (Result, error) {
	sp, err := c.serverPool(serverKey)
	if err != nil {
		return c.fail(err)
	}

	res, err := c.command(ctx, sp, req, storeSignals)
	if err != nil {
		return c.fail(err)
	}

	c.stats.recordStore(len(req.Data))
	return c.result.set(res), nil
}

// Delete removes key. A missing key yields ResNotFound.
func (c *Client) Delete(ctx context.Context, key string) (Result, error) {
	return c.DeleteByKey(ctx, "", key)
}

// DeleteByKey is Delete on the server named by serverKey.
func (c *Client) DeleteByKey(ctx context.Context, serverKey, key string) (Result, error) {
	opts := c.session.snapshot()

	wk, err := wireKey(opts, key)
	if err != nil {
		return c.fail(err)
	}

	sp, err := c.serverPool(serverKey)
	if err != nil {
		return c.fail(err)
	}

	res, err := c.command(ctx, sp, ascii.NewKeyRequest(ascii.VerbDelete, wk), deleteSignals)
	if err != nil {
		return c.fail(err)
	}

	c.stats.recordDelete()
	return c.result.set(res), nil
}

// Touch sets a new expiration on key. A missing key yields ResNotFound.
func (c *Client) Touch(ctx context.Context, key string, expiration int64) (Result, error) {
	return c.TouchByKey(ctx, "", key, expiration)
}

// TouchByKey is Touch on the server named by serverKey.
func (c *Client) TouchByKey(ctx context.Context, serverKey, key string, expiration int64) (Result, error) {
	opts := c.session.snapshot()

	wk, err := wireKey(opts, key)
	if err != nil {
		return c.fail(err)
	}

	sp, err := c.serverPool(serverKey)
	if err != nil {
		return c.fail(err)
	}

	req := ascii.NewKeyRequest(ascii.VerbTouch, wk, strconv.FormatInt(expiration, 10))
	res, err := c.command(ctx, sp, req, touchSignals)
	if err != nil {
		return c.fail(err)
	}

	c.stats.recordTouch()
	return c.result.set(res), nil
}

// Increment adds offset to a numeric item and returns the new value.
//
// A missing key is created with initialValue (not initialValue+offset)
// through a set with the given expiration. In that case the returned
// Result is the result of the set.
func (c *Client) Increment(ctx context.Context, key string, offset, initialValue uint64, expiration int64) (Counter, error) {
	return c.IncrementByKey(ctx, "", key, offset, initialValue, expiration)
}

// IncrementByKey is Increment on the server named by serverKey.
func (c *Client) IncrementByKey(ctx context.Context, serverKey, key string, offset, initialValue uint64, expiration int64) (Counter, error) {
	return c.counter(ctx, ascii.VerbIncr, serverKey, key, offset, initialValue, expiration)
}

// Decrement subtracts offset from a numeric item and returns the new value.
// The server clamps the value at 0.
//
// A missing key is created with max(0, initialValue-offset).
func (c *Client) Decrement(ctx context.Context, key string, offset, initialValue uint64, expiration int64) (Counter, error) {
	return c.DecrementByKey(ctx, "", key, offset, initialValue, expiration)
}

// DecrementByKey is Decrement on the server named by serverKey.
func (c *Client) DecrementByKey(ctx context.Context, serverKey, key string, offset, initialValue uint64, expiration int64) (Counter, error) {
	return c.counter(ctx, ascii.VerbDecr, serverKey, key, offset, initialValue, expiration)
}

func (c *Client) counter(ctx context.Context, verb ascii.Verb, serverKey, key string, offset, initialValue uint64, expiration int64) (Counter, error) {
	opts := c.session.snapshot()

	wk, err := wireKey(opts, key)
	if err != nil {
		res, err := c.fail(err)
		return Counter{Result: res}, err
	}

	sp, err := c.serverPool(serverKey)
	if err != nil {
		res, err := c.fail(err)
		return Counter{Result: res}, err
	}

	req := ascii.NewKeyRequest(verb, wk, strconv.FormatUint(offset, 10))
	line, err := c.query(ctx, sp, req)
	if err != nil {
		res, err := c.fail(err)
		return Counter{Result: res}, err
	}
	c.stats.recordCounter()

	// A storage reply to a counter command is a protocol violation.
	if line != ascii.TokenNotFound {
		if _, isStoreSignal := storeSignals[line]; isStoreSignal {
			res, err := c.fail(c.wrapError(sp, req, &ascii.ParseError{Message: "storage reply to counter command", Line: line}))
			return Counter{Result: res}, err
		}
	}

	value, found, err := ascii.ParseCounter(line)
	if err != nil {
		res, err := c.fail(c.wrapError(sp, req, err))
		return Counter{Result: res}, err
	}
	if found {
		return Counter{Value: value, Result: c.result.set(newResult(ResSuccess, ""))}, nil
	}

	// Missing key: store the initial value. The set's result is the result.
	initial := initialValue
	if verb == ascii.VerbDecr {
		initial = 0
		if initialValue > offset {
			initial = initialValue - offset
		}
	}

	res, err := c.storeRequest(ctx, serverKey, ascii.NewStorageRequest(
		ascii.VerbSet, wk, codec.Flags{Type: codec.TypeInt}.Pack(), expiration, []byte(strconv.FormatUint(initial, 10)),
	))
	if err != nil {
		return Counter{Result: res}, err
	}
	return Counter{Value: initial, Result: res}, nil
}
