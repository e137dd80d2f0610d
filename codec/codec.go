package codec

import (
	"errors"
	"fmt"
	"strconv"
)

// Default codec settings.
const (
	DefaultCompressionThreshold = 2000
	DefaultCompressionFactor    = 1.3
	DefaultCompressionType      = CompressionZlib
	DefaultSerializer           = SerializerCBOR
)

var errIncompressible = errors.New("incompressible input")

// PayloadError is returned when a value cannot be serialized, compressed,
// decompressed or deserialized. Nothing is sent to the server when encoding
// fails.
type PayloadError struct {
	Op      string // encode or decode
	Message string
	Err     error
}

func (e *PayloadError) Error() string {
	msg := "payload " + e.Op + " failed"
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection
func (e *PayloadError) Unwrap() error {
	return e.Err
}

// Settings controls how values are encoded.
type Settings struct {
	// Compression enables compression of payloads larger than
	// CompressionThreshold.
	Compression bool

	CompressionType Compression

	// CompressionThreshold is the payload size in bytes above which
	// compression is attempted.
	CompressionThreshold int

	// CompressionFactor is the minimum ratio of original to compressed size
	// for the compressed form to be kept.
	CompressionFactor float64

	Serializer SerializerKind
}

// DefaultSettings returns compression on (zlib, 2000 bytes, factor 1.3) and
// the CBOR serializer.
func DefaultSettings() Settings {
	return Settings{
		Compression:          true,
		CompressionType:      DefaultCompressionType,
		CompressionThreshold: DefaultCompressionThreshold,
		CompressionFactor:    DefaultCompressionFactor,
		Serializer:           DefaultSerializer,
	}
}

// Encode converts v into its wire payload and flags.
// The returned Flags carry no user bits.
func Encode(v Value, s Settings) ([]byte, Flags, error) {
	var (
		payload []byte
		flags   Flags
	)

	switch v.kind {
	case KindString:
		payload, flags.Type = []byte(v.text), TypeString
	case KindInt:
		payload, flags.Type = []byte(v.text), TypeInt
	case KindFloat:
		payload, flags.Type = []byte(v.text), TypeFloat
	case KindBool:
		payload, flags.Type = []byte(v.text), TypeBool
	case KindSerialized:
		ser, err := SerializerFor(s.Serializer)
		if err != nil {
			return nil, flags, &PayloadError{Op: "encode", Err: err}
		}
		payload, err = ser.Marshal(v.native)
		if err != nil {
			return nil, flags, &PayloadError{Op: "encode", Message: "serializer " + ser.Kind().String(), Err: err}
		}
		flags.Type = ser.Tag()
	default:
		return nil, flags, &PayloadError{Op: "encode", Message: "unknown value kind " + v.kind.String()}
	}

	if !s.Compression || len(payload) <= s.CompressionThreshold {
		return payload, flags, nil
	}

	compressed, err := Compress(s.CompressionType, payload)
	if errors.Is(err, errIncompressible) {
		return payload, flags, nil
	}
	if err != nil {
		return nil, flags, &PayloadError{Op: "encode", Message: "compression " + s.CompressionType.String(), Err: err}
	}

	// Compression must earn its keep by the configured margin.
	if float64(len(payload)) > float64(len(compressed))*s.CompressionFactor {
		flags.Compression = s.CompressionType
		return compressed, flags, nil
	}
	return payload, flags, nil
}

// EncodeRaw returns the plain text of a scalar value, without any type tag
// or compression. It is used for append and prepend, which operate on the
// stored bytes. Serialized values are rejected.
func EncodeRaw(v Value) ([]byte, error) {
	if v.kind == KindSerialized {
		return nil, &PayloadError{Op: "encode", Message: "append and prepend require a scalar value"}
	}
	return []byte(v.text), nil
}

// Decode converts a wire payload and flags word back into a Value.
// Compression is undone before the type tag is interpreted. The serializer
// in s only selects the JSON variant; other serialized payloads are decoded
// by the serializer named in the flags.
func Decode(payload []byte, word uint32, s Settings) (Value, Flags, error) {
	flags, err := UnpackFlags(word)
	if err != nil {
		return Value{}, flags, err
	}

	if flags.Compression != CompressionNone {
		payload, err = Decompress(flags.Compression, payload)
		if err != nil {
			return Value{}, flags, &PayloadError{Op: "decode", Message: "decompression " + flags.Compression.String(), Err: err}
		}
	}

	switch flags.Type {
	case TypeString:
		return Bytes(payload), flags, nil

	case TypeInt:
		text := string(payload)
		if _, err := strconv.ParseInt(text, 10, 64); err != nil {
			if _, uerr := strconv.ParseUint(text, 10, 64); uerr != nil {
				return Value{}, flags, &PayloadError{Op: "decode", Message: fmt.Sprintf("invalid integer %q", text)}
			}
		}
		return Value{kind: KindInt, text: text}, flags, nil

	case TypeFloat:
		text := string(payload)
		if _, err := strconv.ParseFloat(text, 64); err != nil {
			return Value{}, flags, &PayloadError{Op: "decode", Message: fmt.Sprintf("invalid float %q", text)}
		}
		return Value{kind: KindFloat, text: text}, flags, nil

	case TypeBool:
		return Bool(string(payload) == "1"), flags, nil

	case TypeSerialized, TypeJSON, TypeMsgpack:
		ser, err := serializerForTag(flags.Type, s.Serializer)
		if err != nil {
			return Value{}, flags, &PayloadError{Op: "decode", Err: err}
		}
		native, err := ser.Decode(payload)
		if err != nil {
			return Value{}, flags, &PayloadError{Op: "decode", Message: "serializer " + ser.Kind().String(), Err: err}
		}
		return Value{kind: KindSerialized, native: native, raw: payload, serializer: ser}, flags, nil
	}

	return Value{}, flags, &PayloadError{Op: "decode", Message: "unknown type tag " + flags.Type.String()}
}
