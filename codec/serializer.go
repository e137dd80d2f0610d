package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// SerializerKind selects how non-scalar values are serialized.
// Numbering follows the PHP memcached extension so option values carry over.
type SerializerKind uint8

const (
	// SerializerCBOR is the default serializer.
	SerializerCBOR SerializerKind = 1
	// SerializerMsgpack is the compact binary serializer.
	SerializerMsgpack SerializerKind = 2
	// SerializerJSON decodes objects to map[string]any and numbers to json.Number.
	SerializerJSON SerializerKind = 3
	// SerializerJSONArray decodes objects to map[string]any and numbers to float64.
	SerializerJSONArray SerializerKind = 4
)

func (k SerializerKind) String() string {
	switch k {
	case SerializerCBOR:
		return "cbor"
	case SerializerMsgpack:
		return "msgpack"
	case SerializerJSON:
		return "json"
	case SerializerJSONArray:
		return "json-array"
	default:
		return fmt.Sprintf("serializer(%d)", uint8(k))
	}
}

// ParseSerializer parses a serializer name as printed by String.
func ParseSerializer(s string) (SerializerKind, error) {
	switch s {
	case "cbor", "":
		return SerializerCBOR, nil
	case "msgpack":
		return SerializerMsgpack, nil
	case "json":
		return SerializerJSON, nil
	case "json-array", "json_array":
		return SerializerJSONArray, nil
	}
	return 0, fmt.Errorf("unknown serializer %q", s)
}

// Valid reports whether k names a known serializer.
func (k SerializerKind) Valid() bool {
	return k >= SerializerCBOR && k <= SerializerJSONArray
}

// Serializer converts arbitrary Go values to bytes and back.
type Serializer interface {
	Kind() SerializerKind

	// Tag is the type tag stored in the flags word for payloads produced
	// by this serializer.
	Tag() TypeTag

	Marshal(v any) ([]byte, error)

	// Unmarshal decodes data into the value pointed to by dst.
	Unmarshal(data []byte, dst any) error

	// Decode decodes data into a generic Go value.
	Decode(data []byte) (any, error)
}

// SerializerFor returns the serializer for kind.
func SerializerFor(kind SerializerKind) (Serializer, error) {
	switch kind {
	case SerializerCBOR:
		return defaultCBOR, nil
	case SerializerMsgpack:
		return Msgpack{}, nil
	case SerializerJSON:
		return JSON{}, nil
	case SerializerJSONArray:
		return JSON{Array: true}, nil
	}
	return nil, fmt.Errorf("unknown serializer %s", kind)
}

// serializerForTag resolves the serializer used to decode a payload.
// JSON payloads are decoded with the configured JSON variant.
func serializerForTag(tag TypeTag, configured SerializerKind) (Serializer, error) {
	switch tag {
	case TypeSerialized:
		return defaultCBOR, nil
	case TypeMsgpack:
		return Msgpack{}, nil
	case TypeJSON:
		return JSON{Array: configured == SerializerJSONArray}, nil
	}
	return nil, fmt.Errorf("type %s is not serialized", tag)
}

// CBOR serializes values using fxamacker/cbor.
// Maps decode to map[string]any so values survive a JSON/msgpack-style
// round trip through the generic form.
type CBOR struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var defaultCBOR = mustCBOR()

// NewCBOR constructs a CBOR serializer using PreferredUnsortedEncOptions and
// RFC3339Nano time encoding.
func NewCBOR() (CBOR, error) {
	eo := cbor.PreferredUnsortedEncOptions()
	eo.Time = cbor.TimeRFC3339Nano

	em, err := eo.EncMode()
	if err != nil {
		return CBOR{}, err
	}
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		return CBOR{}, err
	}
	return CBOR{enc: em, dec: dm}, nil
}

func mustCBOR() CBOR {
	c, err := NewCBOR()
	if err != nil {
		panic(err)
	}
	return c
}

func (CBOR) Kind() SerializerKind { return SerializerCBOR }
func (CBOR) Tag() TypeTag         { return TypeSerialized }

func (c CBOR) Marshal(v any) ([]byte, error) {
	return c.enc.Marshal(v)
}

func (c CBOR) Unmarshal(data []byte, dst any) error {
	return c.dec.Unmarshal(data, dst)
}

func (c CBOR) Decode(data []byte) (any, error) {
	var v any
	err := c.dec.Unmarshal(data, &v)
	return v, err
}

// Msgpack serializes values using vmihailenco/msgpack/v5.
// The zero value is ready to use.
type Msgpack struct{}

func (Msgpack) Kind() SerializerKind { return SerializerMsgpack }
func (Msgpack) Tag() TypeTag         { return TypeMsgpack }

func (Msgpack) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (Msgpack) Unmarshal(data []byte, dst any) error {
	return msgpack.Unmarshal(data, dst)
}

func (Msgpack) Decode(data []byte) (any, error) {
	var v any
	err := msgpack.Unmarshal(data, &v)
	return v, err
}

// JSON serializes values using encoding/json.
// With Array unset numbers decode to json.Number, otherwise to float64.
type JSON struct {
	Array bool
}

func (j JSON) Kind() SerializerKind {
	if j.Array {
		return SerializerJSONArray
	}
	return SerializerJSON
}

func (JSON) Tag() TypeTag { return TypeJSON }

func (JSON) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON) Unmarshal(data []byte, dst any) error {
	return json.Unmarshal(data, dst)
}

func (j JSON) Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if !j.Array {
		dec.UseNumber()
	}
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
