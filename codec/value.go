package codec

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// Kind is the variant held by a Value.
type Kind uint8

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindSerialized
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindSerialized:
		return "serialized"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a cache value: a string, an integer, a float, a bool, or an
// arbitrary Go value carried through a serializer.
//
// Scalar kinds keep their canonical text form, which is what goes on the
// wire. Serialized values keep the Go value and, once read from the wire,
// the raw bytes and the serializer that produced them.
type Value struct {
	kind       Kind
	text       string
	native     any
	raw        []byte
	serializer Serializer
}

// String creates a string value.
func String(s string) Value { return Value{kind: KindString, text: s} }

// Bytes creates a string value from raw bytes.
func Bytes(b []byte) Value { return Value{kind: KindString, text: string(b)} }

// Int creates an integer value.
func Int(i int64) Value { return Value{kind: KindInt, text: strconv.FormatInt(i, 10)} }

// Uint creates an integer value from an unsigned integer.
func Uint(u uint64) Value { return Value{kind: KindInt, text: strconv.FormatUint(u, 10)} }

// Float creates a floating point value.
func Float(f float64) Value {
	return Value{kind: KindFloat, text: strconv.FormatFloat(f, 'g', -1, 64)}
}

// Bool creates a boolean value. It is stored as "1" or "".
func Bool(b bool) Value {
	if b {
		return Value{kind: KindBool, text: "1"}
	}
	return Value{kind: KindBool}
}

// Serialized wraps an arbitrary Go value that is encoded with the session
// serializer.
func Serialized(v any) Value { return Value{kind: KindSerialized, native: v} }

// ValueOf classifies a native Go value.
// Strings and byte slices become KindString, integer types KindInt, floats
// KindFloat, bools KindBool. Everything else, nil included, is serialized.
func ValueOf(v any) Value {
	switch x := v.(type) {
	case Value:
		return x
	case string:
		return String(x)
	case []byte:
		return Bytes(x)
	case int:
		return Int(int64(x))
	case int8:
		return Int(int64(x))
	case int16:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case int64:
		return Int(x)
	case uint:
		return Uint(uint64(x))
	case uint8:
		return Uint(uint64(x))
	case uint16:
		return Uint(uint64(x))
	case uint32:
		return Uint(uint64(x))
	case uint64:
		return Uint(x)
	case float32:
		return Float(float64(x))
	case float64:
		return Float(x)
	case bool:
		return Bool(x)
	default:
		return Serialized(v)
	}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsScalar reports whether v is stored as plain text.
func (v Value) IsScalar() bool { return v.kind != KindSerialized }

// Text returns the wire text of a scalar value.
// It is empty for serialized values.
func (v Value) Text() string { return v.text }

// Raw returns the serialized bytes of a value read from the wire, or nil.
func (v Value) Raw() []byte { return v.raw }

// String implements fmt.Stringer.
func (v Value) String() string {
	if v.kind == KindSerialized {
		return fmt.Sprint(v.native)
	}
	return v.text
}

// Int parses the value as a signed integer.
func (v Value) Int() (int64, error) {
	if v.kind == KindSerialized {
		return 0, fmt.Errorf("cannot convert %s value to int", v.kind)
	}
	return strconv.ParseInt(v.text, 10, 64)
}

// Uint parses the value as an unsigned integer.
func (v Value) Uint() (uint64, error) {
	if v.kind == KindSerialized {
		return 0, fmt.Errorf("cannot convert %s value to uint", v.kind)
	}
	return strconv.ParseUint(v.text, 10, 64)
}

// Float parses the value as a float.
func (v Value) Float() (float64, error) {
	if v.kind == KindSerialized {
		return 0, fmt.Errorf("cannot convert %s value to float", v.kind)
	}
	return strconv.ParseFloat(v.text, 64)
}

// Bool returns the boolean held by a KindBool value.
func (v Value) Bool() (bool, error) {
	if v.kind != KindBool {
		return false, fmt.Errorf("cannot convert %s value to bool", v.kind)
	}
	return v.text == "1", nil
}

// Interface returns the value as a native Go value: string, int64 (uint64
// when it does not fit), float64, bool, or the deserialized value.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.text
	case KindInt:
		if i, err := strconv.ParseInt(v.text, 10, 64); err == nil {
			return i
		}
		if u, err := strconv.ParseUint(v.text, 10, 64); err == nil {
			return u
		}
		return v.text
	case KindFloat:
		f, err := strconv.ParseFloat(v.text, 64)
		if err != nil {
			return v.text
		}
		return f
	case KindBool:
		return v.text == "1"
	default:
		return v.native
	}
}

// Unmarshal stores the value into the value pointed to by dst.
//
// Serialized values are decoded with their serializer, so dst may be a typed
// struct. Scalars are converted to the destination kind.
func (v Value) Unmarshal(dst any) error {
	if v.kind == KindSerialized {
		return v.unmarshalSerialized(dst)
	}

	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("unmarshal destination must be a non-nil pointer, got %T", dst)
	}
	elem := rv.Elem()

	switch elem.Kind() {
	case reflect.String:
		elem.SetString(v.text)
	case reflect.Slice:
		if elem.Type().Elem().Kind() != reflect.Uint8 {
			return fmt.Errorf("cannot unmarshal %s value into %s", v.kind, elem.Type())
		}
		elem.SetBytes([]byte(v.text))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(v.text, 10, elem.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot unmarshal %q into %s: %w", v.text, elem.Type(), err)
		}
		elem.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(v.text, 10, elem.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot unmarshal %q into %s: %w", v.text, elem.Type(), err)
		}
		elem.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(v.text, elem.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot unmarshal %q into %s: %w", v.text, elem.Type(), err)
		}
		elem.SetFloat(f)
	case reflect.Bool:
		elem.SetBool(v.text == "1")
	case reflect.Interface:
		if elem.NumMethod() != 0 {
			return fmt.Errorf("cannot unmarshal %s value into %s", v.kind, elem.Type())
		}
		elem.Set(reflect.ValueOf(v.Interface()))
	default:
		return fmt.Errorf("cannot unmarshal %s value into %s", v.kind, elem.Type())
	}
	return nil
}

func (v Value) unmarshalSerialized(dst any) error {
	s := v.serializer
	raw := v.raw
	if s == nil {
		// Built locally and never encoded: go through the default serializer.
		s = defaultCBOR
		var err error
		if raw, err = s.Marshal(v.native); err != nil {
			return err
		}
	}
	return s.Unmarshal(raw, dst)
}

// Equal reports whether two scalar values have the same kind and text.
// Serialized values are compared by their raw bytes when both have them.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	if v.kind != KindSerialized {
		if v.kind == KindFloat {
			a, errA := v.Float()
			b, errB := o.Float()
			if errA == nil && errB == nil && math.IsNaN(a) && math.IsNaN(b) {
				return true
			}
		}
		return v.text == o.text
	}
	if v.raw != nil && o.raw != nil {
		return string(v.raw) == string(o.raw)
	}
	return reflect.DeepEqual(v.native, o.native)
}
