package chaosimg

import (
	"fmt"
	"io"

	"github.com/TheusHen/chaosimg/chaosimg/container"
	"github.com/TheusHen/chaosimg/chaosimg/container/erasure"
	"github.com/TheusHen/chaosimg/chaosimg/pipeline"
)

// Codec seals grids into envelopes and opens them again.
type Codec struct {
	pipe         *pipeline.Pipeline
	dataShards   int
	parityShards int
}

type Option func(*Codec)

// WithPipeline replaces the default pipeline.
func WithPipeline(p *pipeline.Pipeline) Option {
	return func(c *Codec) {
		if p != nil {
			c.pipe = p
		}
	}
}

// WithParity protects every envelope with Reed-Solomon parity. Both counts
// must be positive; zero for both disables protection.
func WithParity(dataShards, parityShards int) Option {
	return func(c *Codec) {
		c.dataShards = dataShards
		c.parityShards = parityShards
	}
}

func New(opts ...Option) (*Codec, error) {
	c := &Codec{}
	for _, opt := range opts {
		opt(c)
	}
	if c.pipe == nil {
		c.pipe = pipeline.New()
	}
	if c.dataShards != 0 || c.parityShards != 0 {
		if _, err := erasure.NewCodec(c.dataShards, c.parityShards); err != nil {
			return nil, fmt.Errorf("chaosimg: %w", err)
		}
	}
	return c, nil
}

func (c *Codec) Pipeline() *pipeline.Pipeline { return c.pipe }

// Envelope builds the envelope for a sealed grid.
func (c *Codec) Envelope(s *pipeline.Sealed) *container.Envelope {
	return &container.Envelope{
		Codec:        s.Blob.Codec,
		Width:        1,
		Shape:        s.Blob.Shape,
		Original:     s.Original,
		Digest:       s.Digest,
		Data:         s.Blob.Data,
		DataShards:   c.dataShards,
		ParityShards: c.parityShards,
	}
}

// EncodeTo seals req and writes one envelope to w. A degraded seal is still
// written; check the returned Sealed for metadata failures.
func (c *Codec) EncodeTo(w io.Writer, req pipeline.SealRequest) (*pipeline.Sealed, error) {
	s, err := c.pipe.Seal(req)
	if err != nil {
		return nil, err
	}
	if err := container.Write(w, c.Envelope(s)); err != nil {
		return s, err
	}
	return s, nil
}

// DecodeFrom reads one envelope from r and opens it. Blob, shape and width
// always come from the envelope; the digest and original shape stored in the
// envelope are used when req leaves them empty. Only framing errors are
// returned; integrity and decryption failures are reported on the Opened
// value.
func (c *Codec) DecodeFrom(r io.Reader, req pipeline.OpenRequest) (*pipeline.Opened, *container.Envelope, error) {
	env, err := container.Read(r)
	if err != nil {
		return nil, nil, err
	}
	req.Blob = env.Blob()
	if req.Digest == "" {
		req.Digest = env.Digest
	}
	req.Shape = env.Shape
	req.Width = env.Width
	if req.Original.IsZero() {
		req.Original = env.Original
	}
	return c.pipe.Open(req), env, nil
}
