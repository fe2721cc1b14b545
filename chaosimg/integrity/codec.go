package integrity

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz/lzma"
)

// Codec identifies a compression format. The numeric values are stable and
// appear in serialized envelopes.
type Codec uint8

const (
	CodecZlib Codec = iota + 1
	CodecZstd
	CodecLZ4
	CodecLZMA
)

// DefaultZlibLevel is the zlib effort used when none is configured.
const DefaultZlibLevel = 7

func (c Codec) String() string {
	switch c {
	case CodecZlib:
		return "zlib"
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	case CodecLZMA:
		return "lzma"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// Valid reports whether c names a known codec.
func (c Codec) Valid() bool { return c >= CodecZlib && c <= CodecLZMA }

// ParseCodec maps a codec name to its Codec.
func ParseCodec(s string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "zlib":
		return CodecZlib, nil
	case "zstd":
		return CodecZstd, nil
	case "lz4":
		return CodecLZ4, nil
	case "lzma", "xz":
		return CodecLZMA, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCodec, s)
}

// lz4Writers reuses LZ4 writers to reduce allocations.
var lz4Writers = sync.Pool{
	New: func() interface{} {
		return lz4.NewWriter(nil)
	},
}

var lz4Readers = sync.Pool{
	New: func() interface{} {
		return lz4.NewReader(nil)
	},
}

var lz4Levels = [...]lz4.CompressionLevel{
	lz4.Fast, lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4,
	lz4.Level5, lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}

func compress(c Codec, level int, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	switch c {
	case CodecZlib:
		if level == 0 {
			level = DefaultZlibLevel
		}
		w, err := zlib.NewWriterLevel(&buf, level)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}

	case CodecZstd:
		zl := zstd.SpeedDefault
		if level != 0 {
			zl = zstd.EncoderLevelFromZstd(level)
		}
		enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zl), zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		if _, err := enc.Write(data); err != nil {
			enc.Close()
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}

	case CodecLZ4:
		w := lz4Writers.Get().(*lz4.Writer)
		defer lz4Writers.Put(w)
		w.Reset(&buf)
		if level < 0 || level >= len(lz4Levels) {
			return nil, fmt.Errorf("lz4 level %d out of range", level)
		}
		if err := w.Apply(lz4.CompressionLevelOption(lz4Levels[level])); err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}

	case CodecLZMA:
		w, err := lzma.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCodec, c)
	}
	return buf.Bytes(), nil
}

// decompress inflates data, reading at most limit bytes of output. The
// caller compares the result length against the size it expects.
func decompress(c Codec, data []byte, limit int64) ([]byte, error) {
	src := bytes.NewReader(data)
	var r io.Reader
	switch c {
	case CodecZlib:
		zr, err := zlib.NewReader(src)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr

	case CodecZstd:
		dec, err := zstd.NewReader(src, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		r = dec

	case CodecLZ4:
		lr := lz4Readers.Get().(*lz4.Reader)
		defer lz4Readers.Put(lr)
		lr.Reset(src)
		r = lr

	case CodecLZMA:
		lr, err := lzma.NewReader(src)
		if err != nil {
			return nil, err
		}
		r = lr

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCodec, c)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(r, limit)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
