package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects a compression algorithm.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionZlib Compression = 1
	// CompressionLZ4 fills the "fast" algorithm slot.
	CompressionLZ4  Compression = 2
	CompressionZstd Compression = 3
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZlib:
		return "zlib"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression parses an algorithm name as printed by String.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "none", "":
		return CompressionNone, nil
	case "zlib":
		return CompressionZlib, nil
	case "lz4", "fastlz":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	}
	return CompressionNone, fmt.Errorf("unknown compression %q", s)
}

// Valid reports whether c names a real algorithm.
func (c Compression) Valid() bool {
	return c == CompressionZlib || c == CompressionLZ4 || c == CompressionZstd
}

// Compressed payload framing: 4-byte little-endian uncompressed length
// followed by the algorithm output.
const lengthPrefix = 4

var (
	zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	})
	zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(maxDecompressedSize))
	})
)

// Compress compresses src with the given algorithm and prepends the
// uncompressed length.
func Compress(c Compression, src []byte) ([]byte, error) {
	out := make([]byte, lengthPrefix, lengthPrefix+len(src)/2)
	binary.LittleEndian.PutUint32(out, uint32(len(src)))

	switch c {
	case CompressionZlib:
		buf := bytes.NewBuffer(out)
		w, err := zlib.NewWriterLevel(buf, zlib.DefaultCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(src); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil

	case CompressionLZ4:
		block := make([]byte, lz4.CompressBlockBound(len(src)))
		n, err := lz4.CompressBlock(src, block, nil)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			// Incompressible input. Storing the original is up to the caller.
			return nil, errIncompressible
		}
		return append(out, block[:n]...), nil

	case CompressionZstd:
		enc, err := zstdEncoder()
		if err != nil {
			return nil, err
		}
		return enc.EncodeAll(src, out), nil
	}

	return nil, fmt.Errorf("unsupported compression %s", c)
}

// Decompress reverses Compress.
func Decompress(c Compression, src []byte) ([]byte, error) {
	if len(src) < lengthPrefix {
		return nil, fmt.Errorf("compressed payload too short (%d bytes)", len(src))
	}
	size := binary.LittleEndian.Uint32(src)
	if size > maxDecompressedSize {
		return nil, fmt.Errorf("declared size %d exceeds limit", size)
	}
	body := src[lengthPrefix:]

	var (
		out []byte
		err error
	)

	switch c {
	case CompressionZlib:
		var r io.ReadCloser
		r, err = zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		out, err = io.ReadAll(io.LimitReader(r, int64(size)+1))

	case CompressionLZ4:
		// A block cannot expand by more than maxLZ4Ratio, so a larger
		// prefix is corrupt and must not size the allocation.
		if uint64(size) > uint64(len(body))*maxLZ4Ratio {
			return nil, fmt.Errorf("declared size %d impossible for %d compressed bytes", size, len(body))
		}
		out = make([]byte, size)
		var n int
		n, err = lz4.UncompressBlock(body, out)
		out = out[:n]

	case CompressionZstd:
		var dec *zstd.Decoder
		dec, err = zstdDecoder()
		if err != nil {
			return nil, err
		}
		out, err = dec.DecodeAll(body, make([]byte, 0, min(int(size), len(body)*4)))

	default:
		return nil, fmt.Errorf("unsupported compression %s", c)
	}

	if err != nil {
		return nil, err
	}
	if uint32(len(out)) != size {
		return nil, fmt.Errorf("decompressed %d bytes, expected %d", len(out), size)
	}
	return out, nil
}

const (
	// maxDecompressedSize is the largest value Decompress accepts. It is well
	// above memcached's default 1 MiB item size.
	maxDecompressedSize = 64 << 20

	// maxLZ4Ratio is the largest expansion of an LZ4 block.
	maxLZ4Ratio = 255
)
