// Package steg hides a length-prefixed JSON payload in the least
// significant bits of a grid.
//
// Layout, one bit per scalar element in flattened order starting at
// element 0:
//
//	[length: 4 bytes big-endian][payload: length bytes]
//
// Each byte is written least significant bit first. An element v carrying
// bit b becomes (v & 0xFE) | b; all other elements are left untouched.
package steg

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/TheusHen/chaosimg/chaosimg/grid"
)

// HeaderBits is the number of elements consumed by the length prefix.
const HeaderBits = 32

var (
	ErrCapacity  = errors.New("steg: payload exceeds grid capacity")
	ErrEmpty     = errors.New("steg: empty payload")
	ErrEncode    = errors.New("steg: payload cannot be serialized")
	ErrNoPayload = errors.New("steg: no valid payload header")
	ErrDecode    = errors.New("steg: payload is not valid UTF-8 JSON")
)

// Payload is a free-form metadata record.
type Payload map[string]any

// Capacity returns the largest payload, in bytes, that g can carry.
func Capacity(g *grid.Grid) int {
	if g.Len() < HeaderBits {
		return 0
	}
	return (g.Len() - HeaderBits) / 8
}

// Marshal encodes v as compact JSON. Map keys are sorted, HTML characters
// are not escaped.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// Embed serializes v and hides it in a copy of g. On failure g itself is
// returned together with the error, so callers can continue without
// metadata.
func Embed(g *grid.Grid, v any) (*grid.Grid, error) {
	payload, err := Marshal(v)
	if err != nil {
		return g, err
	}
	return EmbedBytes(g, payload)
}

// EmbedBytes hides payload in a copy of g. See Embed for failure semantics.
func EmbedBytes(g *grid.Grid, payload []byte) (*grid.Grid, error) {
	if len(payload) == 0 {
		return g, ErrEmpty
	}
	if uint64(len(payload)) > math.MaxUint32 {
		return g, fmt.Errorf("%w: %d bytes overflows the length header", ErrCapacity, len(payload))
	}
	required := HeaderBits + 8*len(payload)
	if required > g.Len() {
		return g, fmt.Errorf("%w: need %d bits, grid has %d", ErrCapacity, required, g.Len())
	}

	framed := make([]byte, 4, 4+len(payload))
	binary.BigEndian.PutUint32(framed, uint32(len(payload)))
	framed = append(framed, payload...)

	out := g.Clone()
	i := 0
	for _, b := range framed {
		for bit := 0; bit < 8; bit++ {
			out.Pix[i] = (out.Pix[i] & 0xFE) | ((b >> bit) & 1)
			i++
		}
	}
	return out, nil
}

func readBytes(pix []byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		var b byte
		for bit := 0; bit < 8; bit++ {
			b |= (pix[i*8+bit] & 1) << bit
		}
		out[i] = b
	}
	return out
}

// ExtractBytes recovers the raw payload. The declared length L must satisfy
// 0 < L <= Capacity(g); otherwise ErrNoPayload is returned.
func ExtractBytes(g *grid.Grid) ([]byte, error) {
	if g.Len() < HeaderBits {
		return nil, fmt.Errorf("%w: grid has only %d elements", ErrNoPayload, g.Len())
	}
	length := uint64(binary.BigEndian.Uint32(readBytes(g.Pix[:HeaderBits], 4)))
	if length == 0 || length > uint64(Capacity(g)) {
		return nil, fmt.Errorf("%w: declared length %d, capacity %d", ErrNoPayload, length, Capacity(g))
	}
	return readBytes(g.Pix[HeaderBits:], int(length)), nil
}

// ExtractInto recovers the payload and decodes it into v.
func ExtractInto(g *grid.Grid, v any) error {
	raw, err := ExtractBytes(g)
	if err != nil {
		return err
	}
	if !utf8.Valid(raw) {
		return fmt.Errorf("%w: invalid UTF-8", ErrDecode)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

// Extract recovers a payload. The second result is false when no valid
// payload is present; extraction never fails harder than that.
func Extract(g *grid.Grid) (Payload, bool) {
	var p Payload
	if err := ExtractInto(g, &p); err != nil || p == nil {
		return nil, false
	}
	return p, true
}
