package integrity

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"

	"github.com/TheusHen/chaosimg/chaosimg/grid"
)

// DigestLen is the length of a hex-encoded SHA-256 digest.
const DigestLen = 2 * sha256.Size

var (
	ErrCorruption     = errors.New("integrity: payload corrupted")
	ErrDigestMismatch = errors.New("integrity: digest mismatch")
	ErrUnknownCodec   = errors.New("integrity: unknown codec")
	ErrElementWidth   = errors.New("integrity: unsupported element width")
)

// CompressedBlob is a compressed grid together with what is needed to
// rebuild it.
type CompressedBlob struct {
	Data  []byte
	Shape grid.Shape
	Width int // bytes per element before compression
	Codec Codec
}

// Transport compresses, hashes, verifies and decompresses grids. A Transport
// is immutable after construction and safe for concurrent use.
type Transport struct {
	codec  Codec
	level  int
	logger *slog.Logger
}

// Option configures a Transport.
type Option func(*Transport)

// WithCodec selects the compression format. The default is zlib.
func WithCodec(c Codec) Option {
	return func(t *Transport) { t.codec = c }
}

// WithLevel sets the codec effort. 0 selects the codec's default, which for
// zlib is DefaultZlibLevel.
func WithLevel(level int) Option {
	return func(t *Transport) { t.level = level }
}

func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

// New returns a Transport using zlib at level 7 unless configured otherwise.
func New(opts ...Option) *Transport {
	t := &Transport{
		codec:  CodecZlib,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) Codec() Codec { return t.codec }

// Compress compresses the grid elements. Output is deterministic for a given
// codec, level and input.
func (t *Transport) Compress(g *grid.Grid) (CompressedBlob, error) {
	data, err := t.CompressRaw(g.Pix)
	if err != nil {
		return CompressedBlob{}, err
	}
	return CompressedBlob{Data: data, Shape: g.Shape(), Width: 1, Codec: t.codec}, nil
}

// CompressRaw compresses arbitrary bytes with the configured codec.
func (t *Transport) CompressRaw(raw []byte) ([]byte, error) {
	if !t.codec.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCodec, t.codec)
	}
	data, err := compress(t.codec, t.level, raw)
	if err != nil {
		return nil, fmt.Errorf("integrity: %s compression: %w", t.codec, err)
	}
	return data, nil
}

// Hash returns the lowercase hex SHA-256 of data.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Hash returns the digest of the blob's compressed bytes.
func (b CompressedBlob) Hash() string { return Hash(b.Data) }

// Verify reports whether data hashes to expected. expected must be a
// 64-character lowercase hex digest; anything else fails.
func Verify(data []byte, expected string) bool {
	if len(expected) != DigestLen || strings.ToLower(expected) != expected {
		return false
	}
	actual := Hash(data)
	return subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) == 1
}

// Verify checks the blob against expected and logs a mismatch.
func (t *Transport) Verify(b CompressedBlob, expected string) bool {
	if Verify(b.Data, expected) {
		return true
	}
	t.logger.Warn("integrity check failed",
		"expected", expected,
		"actual", b.Hash(),
		"bytes", len(b.Data))
	return false
}

// Decompress inflates b and reinterprets it as a grid of the given shape
// with width bytes per element. The codec is taken from the blob, so a
// Transport can decompress any codec. Width 1 elements are used as is;
// wider elements are read little-endian and keep only their low byte.
func (t *Transport) Decompress(b CompressedBlob, shape grid.Shape, width int) (*grid.Grid, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	switch width {
	case 1, 2, 4, 8:
	default:
		return nil, fmt.Errorf("%w: %d", ErrElementWidth, width)
	}
	codec := b.Codec
	if codec == 0 {
		codec = t.codec
	}

	elements := int64(shape.Elements())
	if elements <= 0 || elements > (math.MaxInt64-1)/int64(width) {
		return nil, fmt.Errorf("%w: shape %s with width %d has no representable size", ErrCorruption, shape, width)
	}
	expected := elements * int64(width)
	raw, err := decompress(codec, b.Data, expected+1)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruption, codec, err)
	}
	if int64(len(raw)) != expected {
		return nil, fmt.Errorf("%w: decompressed %s bytes, shape %s needs %d",
			ErrCorruption, sizeText(len(raw), expected), shape, expected)
	}

	if width == 1 {
		return grid.FromBytes(shape, raw)
	}
	pix := make([]byte, shape.Elements())
	truncated := 0
	for i := range pix {
		chunk := raw[i*width : (i+1)*width]
		var v uint64
		switch width {
		case 2:
			v = uint64(binary.LittleEndian.Uint16(chunk))
		case 4:
			v = uint64(binary.LittleEndian.Uint32(chunk))
		case 8:
			v = binary.LittleEndian.Uint64(chunk)
		}
		if v > 0xFF {
			truncated++
		}
		pix[i] = byte(v)
	}
	if truncated > 0 {
		t.logger.Warn("element values truncated to 8 bits",
			"width", width,
			"truncated", truncated,
			"elements", shape.Elements())
	}
	return grid.FromBytes(shape, pix)
}

func sizeText(got int, expected int64) string {
	if int64(got) > expected {
		return fmt.Sprintf("more than %d", expected)
	}
	return fmt.Sprintf("%d", got)
}
