// Package compress implements the pixel payload codecs negotiated in
// the HELLO exchange.  Each compressed payload on the wire carries a
// one-byte Tag, so a sender may fall back to None for data that does
// not shrink without telling the peer in advance.
package compress

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Tag identifies the compression applied to one payload.  The values
// are protocol constants.
type Tag uint8

const (
	// None is raw pixel bytes.
	None Tag = 0
	// LZ4 is LZ4 block compression: fast, modest ratio.  Suits
	// continuous desktop streaming.
	LZ4 Tag = 1
	// Zstd is zstd at the default level: better ratio for flat UI
	// content at a higher CPU cost.
	Zstd Tag = 2
)

// String returns the human-readable name of a tag.
func (t Tag) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Valid reports whether t is a known tag.
func (t Tag) Valid() bool { return t <= Zstd }

// ParseTag parses a tag from its name.
func ParseTag(name string) (Tag, error) {
	switch name {
	case "none", "":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	default:
		return None, fmt.Errorf("unknown compression %q", name)
	}
}

// Names lists every supported codec, preferred first.
func Names() []string { return []string{"lz4", "zstd", "none"} }

var errIncompressible = errors.New("data is incompressible")

// Compress compresses data with tag.  When the codec does not shrink
// the data it returns the input unchanged tagged None, so the returned
// tag is the one to put on the wire.
func Compress(data []byte, tag Tag) ([]byte, Tag, error) {
	var (
		out []byte
		err error
	)
	switch tag {
	case None:
		return data, None, nil
	case LZ4:
		out, err = compressLZ4(data)
	case Zstd:
		out, err = compressZstd(data)
	default:
		return nil, None, fmt.Errorf("unsupported compression tag %d", tag)
	}
	if errors.Is(err, errIncompressible) {
		return data, None, nil
	}
	if err != nil {
		return nil, None, err
	}
	return out, tag, nil
}

// Decompress reverses Compress.  rawSize must equal the original
// length exactly; maxSize bounds it so a hostile peer cannot make the
// decoder allocate without limit.
func Decompress(data []byte, tag Tag, rawSize, maxSize int) ([]byte, error) {
	if rawSize < 0 || (maxSize > 0 && rawSize > maxSize) {
		return nil, fmt.Errorf("declared size %d exceeds limit %d", rawSize, maxSize)
	}
	switch tag {
	case None:
		if len(data) != rawSize {
			return nil, fmt.Errorf("raw payload: size %d does not match declared %d", len(data), rawSize)
		}
		return data, nil
	case LZ4:
		return decompressLZ4(data, rawSize)
	case Zstd:
		return decompressZstd(data, rawSize)
	default:
		return nil, fmt.Errorf("unsupported compression tag %d", tag)
	}
}

// ── LZ4 ──────────────────────────────────────────────────────────────

func compressLZ4(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errIncompressible
	}
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if n == 0 || n >= len(data) {
		return nil, errIncompressible
	}
	return dst[:n], nil
}

func decompressLZ4(data []byte, rawSize int) ([]byte, error) {
	dst := make([]byte, rawSize)
	n, err := lz4.UncompressBlock(data, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if n != rawSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", n, rawSize)
	}
	return dst, nil
}

// ── Zstd ─────────────────────────────────────────────────────────────

// zstd.Encoder and zstd.Decoder are safe for concurrent use through
// EncodeAll / DecodeAll, so one pair serves every session.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		panic("compress: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic("compress: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	out := zstdEncoder.EncodeAll(data, nil)
	if len(out) >= len(data) {
		return nil, errIncompressible
	}
	return out, nil
}

func decompressZstd(data []byte, rawSize int) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(data, make([]byte, 0, rawSize))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(out) != rawSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), rawSize)
	}
	return out, nil
}
