package container

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/TheusHen/chaosimg/chaosimg/container/erasure"
	"github.com/TheusHen/chaosimg/chaosimg/grid"
	"github.com/TheusHen/chaosimg/chaosimg/integrity"
)

const (
	// Magic identifies an envelope ("CHMG").
	Magic = uint32(0x43484D47)
	// Version is the only layout this package writes.
	Version = 1
	// MaxPayload bounds the payload section (1 GiB).
	MaxPayload = 1 << 30
)

var (
	ErrMagic     = errors.New("container: invalid magic")
	ErrVersion   = errors.New("container: unsupported version")
	ErrTruncated = errors.New("container: envelope truncated")
	ErrTooLarge  = errors.New("container: payload exceeds maximum size")
	ErrHeader    = errors.New("container: malformed header")
)

// Envelope is a sealed grid ready to be stored or sent.
type Envelope struct {
	Codec integrity.Codec
	Width int
	// Shape is the shape of the grid that was compressed.
	Shape grid.Shape
	// Original is the shape before square padding; zero when no padding
	// was applied.
	Original grid.Shape
	// Digest is the hex SHA-256 of Data as computed by the sender.
	Digest string
	Data   []byte

	// DataShards and ParityShards enable Reed-Solomon protection of Data
	// when both are non-zero.
	DataShards   int
	ParityShards int

	// Repaired lists the shard indices rebuilt while decoding.
	Repaired []int
}

// Blob returns the compressed payload in the form integrity expects.
func (e *Envelope) Blob() integrity.CompressedBlob {
	return integrity.CompressedBlob{Data: e.Data, Shape: e.Shape, Width: e.Width, Codec: e.Codec}
}

// Protected reports whether the envelope carries parity shards.
func (e *Envelope) Protected() bool { return e.DataShards > 0 && e.ParityShards > 0 }

// Encode serializes the envelope.
// Format (big endian):
//
//	4 bytes: magic
//	1 byte:  version
//	1 byte:  codec
//	1 byte:  element width
//	1 byte:  ndim (2|3)
//	4×ndim:  dims
//	1 byte:  original ndim (0 = not padded)
//	4×n:     original dims
//	32 bytes: digest
//	1 byte:  data shards (0 = no parity)
//	1 byte:  parity shards
//	4 bytes: compressed length
//	4 bytes: payload length
//	32×(data+parity) bytes: shard digests, only with parity
//	N bytes: payload
func Encode(e *Envelope) ([]byte, error) {
	if !e.Codec.Valid() {
		return nil, fmt.Errorf("%w: codec %s", ErrHeader, e.Codec)
	}
	if e.Width < 1 || e.Width > 0xFF {
		return nil, fmt.Errorf("%w: element width %d", ErrHeader, e.Width)
	}
	if err := e.Shape.Validate(); err != nil {
		return nil, err
	}
	digest, err := hex.DecodeString(e.Digest)
	if err != nil || len(digest) != sha256.Size {
		return nil, fmt.Errorf("%w: digest %q", ErrHeader, e.Digest)
	}
	if len(e.Data) > MaxPayload {
		return nil, ErrTooLarge
	}

	payload := e.Data
	var shardDigests [][sha256.Size]byte
	if e.DataShards != 0 || e.ParityShards != 0 {
		codec, err := erasure.NewCodec(e.DataShards, e.ParityShards)
		if err != nil {
			return nil, err
		}
		s, err := codec.Protect(e.Data)
		if err != nil {
			return nil, err
		}
		payload = make([]byte, 0, codec.ShardSize(len(e.Data))*codec.TotalShards())
		for _, sh := range s.Shards {
			payload = append(payload, sh...)
		}
		shardDigests = s.Digests
		if len(payload) > MaxPayload {
			return nil, ErrTooLarge
		}
	}

	buf := make([]byte, 0, 64+len(payload)+len(shardDigests)*sha256.Size)
	buf = binary.BigEndian.AppendUint32(buf, Magic)
	buf = append(buf, Version, byte(e.Codec), byte(e.Width))
	buf = appendShape(buf, e.Shape)
	if e.Original.IsZero() {
		buf = append(buf, 0)
	} else {
		if err := e.Original.Validate(); err != nil {
			return nil, err
		}
		buf = appendShape(buf, e.Original)
	}
	buf = append(buf, digest...)
	buf = append(buf, byte(e.DataShards), byte(e.ParityShards))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(e.Data)))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(payload)))
	for _, d := range shardDigests {
		buf = append(buf, d[:]...)
	}
	buf = append(buf, payload...)
	return buf, nil
}

func appendShape(buf []byte, s grid.Shape) []byte {
	dims := s.Dims()
	buf = append(buf, byte(len(dims)))
	for _, d := range dims {
		buf = binary.BigEndian.AppendUint32(buf, uint32(d))
	}
	return buf
}

// Write encodes e to w.
func Write(w io.Writer, e *Envelope) error {
	b, err := Encode(e)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(b); err != nil {
		return err
	}
	return bw.Flush()
}

// Read reads one envelope from r without reading past its end. Damaged
// shards are rebuilt when the envelope carries parity; the digest itself is
// not checked here.
func Read(r io.Reader) (*Envelope, error) {
	fr := &frameReader{r: r}

	head := fr.next(8)
	if fr.err == nil {
		ndim := int(head[7])
		if ndim != 2 && ndim != 3 {
			return nil, fmt.Errorf("%w: ndim %d", ErrHeader, ndim)
		}
		head = fr.next(4*ndim + 1)
	}
	if fr.err == nil {
		orig := int(head[len(head)-1])
		head = fr.next(4*orig + sha256.Size + 2 + 8)
	}
	if fr.err != nil {
		return nil, fr.err
	}
	tail := head[len(head)-10:]
	shards := int(tail[0]) + int(tail[1])
	payloadLen := binary.BigEndian.Uint32(tail[6:])
	if payloadLen > MaxPayload {
		return nil, fmt.Errorf("%w: %d", ErrTooLarge, payloadLen)
	}
	if tail[0] == 0 || tail[1] == 0 {
		shards = 0
	}
	fr.next(shards*sha256.Size + int(payloadLen))
	if fr.err != nil {
		return nil, fr.err
	}
	return Decode(fr.buf.Bytes())
}

// frameReader accumulates exactly the bytes asked for. Memory grows with
// the bytes actually received, not with the lengths a header declares.
type frameReader struct {
	r   io.Reader
	buf bytes.Buffer
	err error
}

// next reads n more bytes and returns the whole frame read so far.
func (f *frameReader) next(n int) []byte {
	if f.err != nil {
		return nil
	}
	got, err := io.CopyN(&f.buf, f.r, int64(n))
	if got < int64(n) {
		if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			err = ErrTruncated
		}
		f.err = err
		return nil
	}
	return f.buf.Bytes()
}

// cursor walks a decoded envelope.
type cursor struct {
	b   []byte
	off int
}

func (c *cursor) take(n int) ([]byte, error) {
	if n < 0 || c.off+n > len(c.b) {
		return nil, ErrTruncated
	}
	out := c.b[c.off : c.off+n]
	c.off += n
	return out, nil
}

func (c *cursor) u8() (byte, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) u32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (c *cursor) shape(allowEmpty bool) (grid.Shape, error) {
	ndim, err := c.u8()
	if err != nil {
		return grid.Shape{}, err
	}
	if ndim == 0 && allowEmpty {
		return grid.Shape{}, nil
	}
	if ndim != 2 && ndim != 3 {
		return grid.Shape{}, fmt.Errorf("%w: ndim %d", ErrHeader, ndim)
	}
	dims := make([]int, ndim)
	for i := range dims {
		d, err := c.u32()
		if err != nil {
			return grid.Shape{}, err
		}
		if d > 1<<24 {
			return grid.Shape{}, fmt.Errorf("%w: dimension %d", ErrHeader, d)
		}
		dims[i] = int(d)
	}
	s, err := grid.ShapeOf(dims)
	if err != nil {
		return grid.Shape{}, fmt.Errorf("%w: %w", ErrHeader, err)
	}
	return s, nil
}

// Decode parses an envelope produced by Encode.
func Decode(b []byte) (*Envelope, error) {
	c := &cursor{b: b}
	magic, err := c.u32()
	if err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, ErrMagic
	}
	head, err := c.take(3)
	if err != nil {
		return nil, err
	}
	if head[0] != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, head[0])
	}
	e := &Envelope{Codec: integrity.Codec(head[1]), Width: int(head[2])}
	if !e.Codec.Valid() {
		return nil, fmt.Errorf("%w: codec %d", ErrHeader, head[1])
	}
	if e.Width == 0 {
		return nil, fmt.Errorf("%w: element width 0", ErrHeader)
	}
	if e.Shape, err = c.shape(false); err != nil {
		return nil, err
	}
	if e.Original, err = c.shape(true); err != nil {
		return nil, err
	}
	digest, err := c.take(sha256.Size)
	if err != nil {
		return nil, err
	}
	e.Digest = hex.EncodeToString(digest)

	counts, err := c.take(2)
	if err != nil {
		return nil, err
	}
	dataLen, err := c.u32()
	if err != nil {
		return nil, err
	}
	payloadLen, err := c.u32()
	if err != nil {
		return nil, err
	}
	if payloadLen > MaxPayload || dataLen > MaxPayload {
		return nil, ErrTooLarge
	}

	if counts[0] == 0 || counts[1] == 0 {
		if dataLen != payloadLen {
			return nil, fmt.Errorf("%w: compressed length %d, payload %d", ErrHeader, dataLen, payloadLen)
		}
		data, err := c.take(int(payloadLen))
		if err != nil {
			return nil, err
		}
		e.Data = append([]byte(nil), data...)
		return e, nil
	}

	e.DataShards, e.ParityShards = int(counts[0]), int(counts[1])
	codec, err := erasure.NewCodec(e.DataShards, e.ParityShards)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHeader, err)
	}
	shardSize := codec.ShardSize(int(dataLen))
	if int(payloadLen) != shardSize*codec.TotalShards() {
		return nil, fmt.Errorf("%w: payload %d bytes, want %d shards of %d", ErrHeader, payloadLen, codec.TotalShards(), shardSize)
	}
	s := &erasure.Shards{
		Shards:  make([][]byte, codec.TotalShards()),
		Digests: make([][sha256.Size]byte, codec.TotalShards()),
		Size:    int(dataLen),
	}
	for i := range s.Digests {
		d, err := c.take(sha256.Size)
		if err != nil {
			return nil, err
		}
		copy(s.Digests[i][:], d)
	}
	for i := range s.Shards {
		sh, err := c.take(shardSize)
		if err != nil {
			return nil, err
		}
		s.Shards[i] = sh
	}
	data, repaired, err := codec.Recover(s)
	if err != nil {
		return nil, err
	}
	e.Data = data
	e.Repaired = repaired
	return e, nil
}
