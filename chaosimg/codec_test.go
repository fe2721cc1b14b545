package chaosimg

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/TheusHen/chaosimg/chaosimg/container"
	"github.com/TheusHen/chaosimg/chaosimg/container/erasure"
	"github.com/TheusHen/chaosimg/chaosimg/grid"
	"github.com/TheusHen/chaosimg/chaosimg/integrity"
	"github.com/TheusHen/chaosimg/chaosimg/pipeline"
)

func testImage(t *testing.T, s grid.Shape) *grid.Grid {
	t.Helper()
	g, err := grid.New(s)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := range g.Pix {
		g.Pix[i] = byte(i*31 + i/7)
	}
	return g
}

func TestEncodeDecode(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	img := testImage(t, grid.Shape{Height: 30, Width: 50, Channels: 3})
	params := pipeline.DefaultParameters()

	var buf bytes.Buffer
	sealed, err := c.EncodeTo(&buf, pipeline.SealRequest{Grid: img, Params: params})
	if err != nil {
		t.Fatalf("EncodeTo: %v", err)
	}
	if !sealed.Padded() {
		t.Fatalf("expected padding for a 30x50 image")
	}

	opened, env, err := c.DecodeFrom(&buf, pipeline.OpenRequest{Params: params})
	if err != nil {
		t.Fatalf("DecodeFrom: %v", err)
	}
	if env.Original != img.Shape() {
		t.Fatalf("envelope original = %s, want %s", env.Original, img.Shape())
	}
	if opened.Status != pipeline.StatusOK || !opened.Image().Equal(img) {
		t.Fatalf("round trip failed: %s %v", opened.Status, opened.Err)
	}
}

func TestParityRepairsDamage(t *testing.T) {
	c, err := New(WithParity(6, 2), WithPipeline(pipeline.New(pipeline.WithCodec(integrity.CodecZstd))))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	img := testImage(t, grid.Shape{Height: 48, Width: 48, Channels: 3})
	params := pipeline.DefaultParameters()

	var buf bytes.Buffer
	sealed, err := c.EncodeTo(&buf, pipeline.SealRequest{Grid: img, Params: params})
	if err != nil {
		t.Fatalf("EncodeTo: %v", err)
	}
	raw := buf.Bytes()
	rs, _ := erasure.NewCodec(6, 2)
	shard := rs.ShardSize(len(sealed.Blob.Data))
	raw[len(raw)-1] ^= 0xFF
	raw[len(raw)-1-3*shard] ^= 0xFF

	opened, env, err := c.DecodeFrom(bytes.NewReader(raw), pipeline.OpenRequest{Params: params})
	if err != nil {
		t.Fatalf("DecodeFrom: %v", err)
	}
	if len(env.Repaired) != 2 {
		t.Fatalf("expected 2 repaired shards, got %v", env.Repaired)
	}
	if !opened.Verified || !opened.Image().Equal(img) {
		t.Fatalf("repaired envelope did not open: %s %v", opened.Status, opened.Err)
	}
}

func TestUnprotectedDamageFailsVerification(t *testing.T) {
	c, _ := New()
	img := testImage(t, grid.Shape{Height: 16, Width: 16})
	params := pipeline.DefaultParameters()

	var buf bytes.Buffer
	if _, err := c.EncodeTo(&buf, pipeline.SealRequest{Grid: img, Params: params}); err != nil {
		t.Fatalf("EncodeTo: %v", err)
	}
	raw := buf.Bytes()
	raw[len(raw)-2] ^= 0x01

	opened, _, err := c.DecodeFrom(bytes.NewReader(raw), pipeline.OpenRequest{Params: params})
	if err != nil {
		t.Fatalf("DecodeFrom: %v", err)
	}
	if opened.Status != pipeline.StatusFailed || !errors.Is(opened.Err, integrity.ErrDigestMismatch) {
		t.Fatalf("expected a digest mismatch, got %s %v", opened.Status, opened.Err)
	}
	if opened.Image() != nil {
		t.Fatalf("decryption should not run on unverified data")
	}
}

func TestInvalidParity(t *testing.T) {
	if _, err := New(WithParity(4, 0)); !errors.Is(err, erasure.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestDecodeFromEmptyStream(t *testing.T) {
	c, _ := New()
	if _, _, err := c.DecodeFrom(bytes.NewReader(nil), pipeline.OpenRequest{}); !errors.Is(err, container.ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestDecodeFromCallerDigest(t *testing.T) {
	c, _ := New()
	img := testImage(t, grid.Shape{Height: 8, Width: 8, Channels: 3})
	params := pipeline.DefaultParameters()

	var buf bytes.Buffer
	sealed, err := c.EncodeTo(&buf, pipeline.SealRequest{Grid: img, Params: params})
	if err != nil {
		t.Fatalf("EncodeTo: %v", err)
	}
	raw := buf.Bytes()

	opened, _, err := c.DecodeFrom(bytes.NewReader(raw), pipeline.OpenRequest{Params: params, Digest: sealed.Digest})
	if err != nil || opened.Status != pipeline.StatusOK {
		t.Fatalf("expected a clean open, got %v %v", opened, err)
	}
	opened, _, _ = c.DecodeFrom(bytes.NewReader(raw), pipeline.OpenRequest{Params: params, Digest: integrity.Hash(nil)})
	if !errors.Is(opened.Err, integrity.ErrDigestMismatch) {
		t.Fatalf("expected the caller digest to be enforced, got %v", opened.Err)
	}
}

func TestDecodeFromOverflowingShape(t *testing.T) {
	c, _ := New()
	img := testImage(t, grid.Shape{Height: 8, Width: 8, Channels: 3})
	params := pipeline.DefaultParameters()

	var buf bytes.Buffer
	if _, err := c.EncodeTo(&buf, pipeline.SealRequest{Grid: img, Params: params}); err != nil {
		t.Fatalf("EncodeTo: %v", err)
	}
	raw := buf.Bytes()
	// 2^20 x 2^20 x 2^24 wraps to zero elements in 64 bits.
	binary.BigEndian.PutUint32(raw[8:], 1<<20)
	binary.BigEndian.PutUint32(raw[12:], 1<<20)
	binary.BigEndian.PutUint32(raw[16:], 1<<24)

	opened, _, err := c.DecodeFrom(bytes.NewReader(raw), pipeline.OpenRequest{Params: params})
	if !errors.Is(err, container.ErrHeader) || !errors.Is(err, grid.ErrShape) {
		t.Fatalf("expected a shape header error, got %v", err)
	}
	if opened != nil {
		t.Fatalf("expected no opened image, got %s", opened.Status)
	}
}
