package codec

import "fmt"

// TypeTag identifies the kind of payload stored in the low 4 bits of the
// flags word.
type TypeTag uint8

const (
	TypeString     TypeTag = 0
	TypeInt        TypeTag = 1
	TypeFloat      TypeTag = 2
	TypeBool       TypeTag = 3
	TypeSerialized TypeTag = 4
	// 5 is reserved
	TypeJSON    TypeTag = 6
	TypeMsgpack TypeTag = 7
)

func (t TypeTag) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	case TypeSerialized:
		return "serialized"
	case TypeJSON:
		return "json"
	case TypeMsgpack:
		return "msgpack"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Flags word layout:
//
//	bits  0..3   type tag
//	bits  4..15  internal flags (compression)
//	bits 16..31  user flags, passed through untouched
const (
	typeMask = 0xF

	internalShift  = 4
	flagCompressed = 1 << 0
	flagZlib       = 1 << 1
	flagLZ4        = 1 << 2
	flagZstd       = 1 << 3
	internalMask   = 0xFFF

	userShift = 16
)

// Flags is the decoded form of the 32-bit flags word attached to an item.
type Flags struct {
	Type TypeTag

	// Compression is CompressionNone unless the payload is compressed.
	Compression Compression

	// User holds the caller-owned high 16 bits.
	User uint16
}

// Pack serializes f into the wire flags word.
func (f Flags) Pack() uint32 {
	word := uint32(f.Type) & typeMask

	var internal uint32
	switch f.Compression {
	case CompressionZlib:
		internal = flagCompressed | flagZlib
	case CompressionLZ4:
		internal = flagCompressed | flagLZ4
	case CompressionZstd:
		internal = flagCompressed | flagZstd
	}
	word |= internal << internalShift

	return word | uint32(f.User)<<userShift
}

// UnpackFlags parses a wire flags word.
// An unknown compression sub-bit with the compressed bit set is an error.
func UnpackFlags(word uint32) (Flags, error) {
	f := Flags{
		Type: TypeTag(word & typeMask),
		User: uint16(word >> userShift),
	}

	internal := (word >> internalShift) & internalMask
	if internal&flagCompressed == 0 {
		return f, nil
	}

	switch {
	case internal&flagZlib != 0:
		f.Compression = CompressionZlib
	case internal&flagLZ4 != 0:
		f.Compression = CompressionLZ4
	case internal&flagZstd != 0:
		f.Compression = CompressionZstd
	default:
		return f, &PayloadError{Op: "decode", Message: fmt.Sprintf("compressed flag without algorithm (flags %d)", word)}
	}
	return f, nil
}
