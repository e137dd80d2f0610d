// Package codec converts cache values to wire payloads and back.
//
// A payload travels with a 32-bit flags word. The low 4 bits tag the value
// type, bits 4 to 15 record compression, and bits 16 to 31 belong to the
// caller:
//
//	payload, flags, err := codec.Encode(codec.ValueOf(v), codec.DefaultSettings())
//	word := flags.Pack()
//
//	value, _, err := codec.Decode(payload, word, settings)
//	var user User
//	err = value.Unmarshal(&user)
//
// Strings, integers, floats and bools are stored as text so other clients
// can read and increment them. Other values go through a serializer: CBOR
// (default), msgpack, or one of two JSON variants.
//
// Payloads above the compression threshold are compressed with zlib, lz4 or
// zstd, and the compressed form is kept only when it is smaller than the
// original by the configured factor.
package codec
